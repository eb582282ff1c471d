package quotes

import (
	"context"
	"math/rand"
	"sync"
)

// Provider produces one quote per call. Implementations must be safe for
// concurrent use.
type Provider interface {
	Fetch(ctx context.Context) (string, error)
}

// defaultPool is the built-in set of quotes served when no remote provider
// is configured.
var defaultPool = []string{
	"The only way to do great work is to love what you do.",
	"Simplicity is the ultimate sophistication.",
	"Programs must be written for people to read, and only incidentally for machines to execute.",
	"Premature optimization is the root of all evil.",
	"Talk is cheap. Show me the code.",
	"First, solve the problem. Then, write the code.",
	"Make it work, make it right, make it fast.",
	"The best error message is the one that never shows up.",
	"Deleted code is debugged code.",
	"A language that doesn't affect the way you think about programming is not worth knowing.",
}

// Pool serves quotes from a fixed in-memory set, picked pseudo-randomly.
type Pool struct {
	mu     sync.Mutex
	rng    *rand.Rand
	quotes []string
}

// NewPool creates a Pool over the built-in quote set.
// rng may not be nil; inject a seeded source for deterministic tests.
func NewPool(rng *rand.Rand) *Pool {
	return &Pool{rng: rng, quotes: defaultPool}
}

// NewPoolWith creates a Pool over a caller-supplied quote set.
func NewPoolWith(rng *rand.Rand, quotes []string) *Pool {
	return &Pool{rng: rng, quotes: quotes}
}

func (p *Pool) Fetch(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quotes[p.rng.Intn(len(p.quotes))], nil
}
