package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the streamer service.
type Config struct {
	LogLevel    string
	HTTPPort    string
	MetricsAddr string

	RedisAddr    string
	PostgresDSN  string
	KafkaBrokers string
	OTelEndpoint string

	QuoteURL string

	PollInterval   time.Duration
	TickInterval   time.Duration
	SleepMin       time.Duration
	SleepMax       time.Duration
	FetchTimeout   time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration

	JanitorSchedule string
	Retention       time.Duration

	StreamRateLimit  int
	StreamRateWindow time.Duration
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:    v.GetString("log_level"),
		HTTPPort:    v.GetString("http_port"),
		MetricsAddr: v.GetString("metrics_addr"),

		RedisAddr:    v.GetString("redis_addr"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		KafkaBrokers: v.GetString("kafka_brokers"),
		OTelEndpoint: v.GetString("otel_endpoint"),

		QuoteURL: v.GetString("quote_url"),

		PollInterval:   v.GetDuration("poll_interval"),
		TickInterval:   v.GetDuration("tick_interval"),
		SleepMin:       v.GetDuration("sleep_min"),
		SleepMax:       v.GetDuration("sleep_max"),
		FetchTimeout:   v.GetDuration("fetch_timeout"),
		MaxAttempts:    v.GetInt("max_attempts"),
		RetryBaseDelay: v.GetDuration("retry_base_delay"),

		JanitorSchedule: v.GetString("janitor_schedule"),
		Retention:       v.GetDuration("retention"),

		StreamRateLimit:  v.GetInt("stream_rate_limit"),
		StreamRateWindow: v.GetDuration("stream_rate_window"),
	}
}
