package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered event bus. Events emitted during step N are
// delivered during step N+1, when the runner swaps the buffers and
// dispatches. Emit is safe from any goroutine.
type Bus struct {
	mu       sync.Mutex
	front    map[reflect.Type][]any
	back     map[reflect.Type][]any
	handlers map[reflect.Type][]any
}

func NewBus() *Bus {
	return &Bus{
		front:    make(map[reflect.Type][]any),
		back:     make(map[reflect.Type][]any),
		handlers: make(map[reflect.Type][]any),
	}
}

// Emit queues an event into the back buffer. A nil bus drops it.
func Emit[T any](b *Bus, event T) {
	if b == nil {
		return
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.Lock()
	b.back[t] = append(b.back[t], event)
	b.mu.Unlock()
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// SwapBuffers rotates back→front and clears the new back buffer.
func (b *Bus) SwapBuffers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.front, b.back = b.back, b.front
	for k := range b.back {
		b.back[k] = b.back[k][:0]
	}
}

// DispatchAll delivers all front-buffer events to their handlers and
// returns how many events were delivered.
func (b *Bus) DispatchAll() int {
	b.mu.Lock()
	batches := make(map[reflect.Type][]any, len(b.front))
	handlers := make(map[reflect.Type][]any, len(b.front))
	for t, events := range b.front {
		if len(events) == 0 {
			continue
		}
		batches[t] = append([]any(nil), events...)
		handlers[t] = b.handlers[t]
		b.front[t] = events[:0]
	}
	b.mu.Unlock()

	n := 0
	for t, events := range batches {
		for _, ev := range events {
			for _, h := range handlers[t] {
				h.(func(any))(ev)
			}
			n++
		}
	}
	return n
}

// Flush swaps and dispatches until no events remain, for shutdown.
func (b *Bus) Flush() {
	for i := 0; i < 2; i++ {
		b.SwapBuffers()
		b.DispatchAll()
	}
}
