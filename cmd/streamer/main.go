package main

import "github.com/ramiqadoumi/quote-stream/services/streamer/cli"

func main() {
	cli.Execute()
}
