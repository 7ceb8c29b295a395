// Package bus fans out "the Directory changed" signals inside one process.
// The signal carries no payload: consumers always re-read the whole document
// rather than trusting a diff.
package bus

import (
	"context"
	"sync"
)

// Bus delivers change signals to every subscriber. Sends never block: a
// subscriber that is mid-refresh keeps exactly one pending signal, which is
// enough because every refresh is a full re-read.
type Bus struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func New() *Bus {
	return &Bus{subs: make(map[chan struct{}]struct{})}
}

// Subscribe registers a consumer. The subscription ends when ctx is done.
func (b *Bus) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}()
	return ch
}

// Publish signals every subscriber that the Directory changed.
func (b *Bus) Publish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
