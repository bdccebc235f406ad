package output

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/PageGrab/internal/capture"
	"github.com/bryanchriswhite/PageGrab/internal/logger"
)

// Broadcaster fans capture results out to subscribers. Slow subscribers
// miss results rather than block the capture path.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan *capture.Result]struct{}
	closed  bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[chan *capture.Result]struct{})}
}

func (b *Broadcaster) Name() string { return "broadcast" }

// Subscribe registers a client. The returned func unsubscribes and closes
// the channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan *capture.Result, func()) {
	ch := make(chan *capture.Result, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.clients[ch] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()

	logger.WithComponent("output").Debug().Int("subscribers", count).Msg("Capture subscriber added")

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.clients[ch]; ok {
				delete(b.clients, ch)
				close(ch)
			}
		})
	}
}

// Write publishes res to every subscriber.
func (b *Broadcaster) Write(_ context.Context, res *capture.Result) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.clients {
		select {
		case ch <- res:
		default:
			logger.WithComponent("output").Debug().Str("capture", res.ID).Msg("Subscriber is slow, dropping capture")
		}
	}
	return nil
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.clients {
		close(ch)
	}
	b.clients = make(map[chan *capture.Result]struct{})
	b.closed = true
}
