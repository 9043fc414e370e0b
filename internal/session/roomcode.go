package session

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Room code shape
const (
	MinCodeLength   = 5
	MaxCodeLength   = 10
	CodeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	MaxCodeAttempts = 16
)

// CodeGenerator draws room codes of random length from CodeAlphabet
type CodeGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewCodeGenerator uses src for randomness; nil seeds from the clock
func NewCodeGenerator(src rand.Source) *CodeGenerator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &CodeGenerator{rng: rand.New(src)}
}

// Next draws one candidate code
func (g *CodeGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	length := MinCodeLength + g.rng.Intn(MaxCodeLength-MinCodeLength+1)
	code := make([]byte, length)
	for i := range code {
		code[i] = CodeAlphabet[g.rng.Intn(len(CodeAlphabet))]
	}
	return string(code)
}

// Unique draws codes until inUse reports one free, up to MaxCodeAttempts.
// FUNCTIONAL DISCOVERY: the check is advisory; the partial unique index on
// active codes decides, and callers redraw on a constraint conflict
func (g *CodeGenerator) Unique(ctx context.Context, inUse func(ctx context.Context, code string) (bool, error)) (string, error) {
	for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code := g.Next()
		taken, err := inUse(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}
