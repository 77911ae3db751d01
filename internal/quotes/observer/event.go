package observer

import "sync"

// Subscription Unsubscribe 用的句柄
type Subscription uint64

type handler[T any] struct {
	id Subscription
	fn func(T)
}

// Event：同步回调的发布点
//
// Emit 期间对 Subscribe/Unsubscribe 的修改，在本次 Emit 结束后才生效
type Event[T any] struct {
	mu       sync.Mutex
	nextID   Subscription
	handlers []handler[T]

	emitting int
	pending  []func()
}

func New[T any]() *Event[T] { return &Event[T]{} }

func (e *Event[T]) Subscribe(fn func(T)) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	add := func() { e.handlers = append(e.handlers, handler[T]{id: id, fn: fn}) }
	if e.emitting > 0 {
		e.pending = append(e.pending, add)
	} else {
		add()
	}
	return id
}

func (e *Event[T]) Unsubscribe(id Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	remove := func() {
		for i, h := range e.handlers {
			if h.id == id {
				e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
				return
			}
		}
	}
	if e.emitting > 0 {
		e.pending = append(e.pending, remove)
	} else {
		remove()
	}
}

// Emit 按订阅顺序同步调用；handler 在锁外执行
func (e *Event[T]) Emit(v T) {
	e.mu.Lock()
	e.emitting++
	hs := e.handlers
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.emitting--
		if e.emitting == 0 {
			for _, fn := range e.pending {
				fn()
			}
			e.pending = nil
		}
		e.mu.Unlock()
	}()

	for _, h := range hs {
		h.fn(v)
	}
}

func (e *Event[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}
