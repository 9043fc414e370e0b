package websocket

import (
	"sync"

	"examguard/pkg/interfaces"
	"examguard/pkg/types"
)

// SignalBus implements interfaces.SignalSource for signals read off candidate sockets
type SignalBus struct {
	mu       sync.RWMutex
	handlers map[string]*subscription
}

type subscription struct {
	handler interfaces.SignalHandler
}

// NewSignalBus creates an empty bus
func NewSignalBus() *SignalBus {
	return &SignalBus{handlers: make(map[string]*subscription)}
}

// Subscribe registers handler for key, replacing any previous subscriber.
// The returned func removes this subscription only, so a stale guard cannot
// unhook the guard of a newer session for the same candidate.
func (b *SignalBus) Subscribe(key string, handler interfaces.SignalHandler) (func(), error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	sub := &subscription{handler: handler}

	b.mu.Lock()
	b.handlers[key] = sub
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.handlers[key] == sub {
				delete(b.handlers, key)
			}
			b.mu.Unlock()
		})
	}, nil
}

// Dispatch delivers sig to the key's subscriber.
// handled is false when nobody is subscribed, e.g. before the session is armed.
func (b *SignalBus) Dispatch(key string, sig types.Signal) (prevent bool, handled bool) {
	b.mu.RLock()
	sub, exists := b.handlers[key]
	b.mu.RUnlock()

	if !exists {
		return false, false
	}
	return sub.handler(sig), true
}

// Subscribers reports how many candidates currently have a guard attached
func (b *SignalBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
