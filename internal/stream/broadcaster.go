package stream

import (
	"sync"

	"github.com/quietmask/maskd/internal/metrics"
)

// Broadcaster fans out rendered PCM frames from one device to N listeners
// (the WebRTC track loop, HTTP fallback streams).
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	C    chan []int16 // buffered channel of 20ms frames
	done chan struct{}
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// NewBroadcaster creates a broadcaster with no listeners.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[*Listener]struct{})}
}

// Subscribe registers a new listener.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, 150), // ~3s of headroom at 20ms/frame
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop. Unsubscribing
// twice is a no-op.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Run fans frames from source out to all listeners until source closes.
// Slow listeners get frames dropped rather than stalling the device.
func (b *Broadcaster) Run(source <-chan []int16) {
	for frame := range source {
		b.mu.RLock()
		for l := range b.listeners {
			select {
			case l.C <- frame:
			default:
				metrics.DroppedFramesTotal.Inc()
			}
		}
		b.mu.RUnlock()
	}
}
