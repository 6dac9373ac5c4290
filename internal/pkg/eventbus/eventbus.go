/*
Package eventbus provides a typed, in-process fan-out of values to subscribed listeners.

Listeners are notified synchronously, in subscription order, on the publisher's goroutine.
A listener that panics is recovered and logged; the remaining listeners are still notified.
*/
package eventbus

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"chatsync/internal/pkg/logx"
)

type listener[T any] struct {
	id uint64
	fn func(T)
}

// Bus fans values of type T out to its listeners.
type Bus[T any] struct {
	// mu protects listeners and nextID.
	mu sync.RWMutex

	listeners []listener[T]
	nextID    uint64

	logger zerolog.Logger
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the listener. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// New creates a Bus whose listener failures are logged under name.
func New[T any](name string) *Bus[T] {
	return &Bus[T]{
		logger: logx.Logger().With().Str("component", "eventbus").Str("bus", name).Logger(),
	}
}

// Subscribe registers fn and returns its handle.
func (b *Bus[T]) Subscribe(fn func(T)) *Subscription {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, listener[T]{id: id, fn: fn})
	b.mu.Unlock()

	return &Subscription{cancel: func() { b.remove(id) }}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, l := range b.listeners {
		if l.id == id {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Publish notifies every listener registered at the time of the call.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	snapshot := make([]listener[T], len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.RUnlock()

	for _, l := range snapshot {
		b.notify(l, v)
	}
}

func (b *Bus[T]) notify(l listener[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Err(fmt.Errorf("%v", r)).
				Uint64("listener_id", l.id).
				Msg("Listener panicked. Continuing fan-out.")
		}
	}()

	l.fn(v)
}

// Len returns the number of registered listeners.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
