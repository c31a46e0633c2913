package realtime

import (
	"sync"

	"nexochat/backend/internal/models"
)

// Listener delivers the events of one Subscription to a callback on its own
// goroutine. Once Close returns the callback is never invoked again. The
// callback must not call Close.
type Listener struct {
	sub Subscription
	fn  func(models.ChangeEvent)

	mu     sync.Mutex // held while fn runs
	closed bool

	once sync.Once
	done chan struct{}
	err  error
}

// Listen starts delivering sub's events to fn.
func Listen(sub Subscription, fn func(models.ChangeEvent)) *Listener {
	l := &Listener{
		sub:  sub,
		fn:   fn,
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Listener) run() {
	defer close(l.done)

	for ev := range l.sub.C() {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return
		}
		l.fn(ev)
		l.mu.Unlock()
	}

	l.mu.Lock()
	if !l.closed {
		l.err = l.sub.Err()
	}
	l.mu.Unlock()
}

// Close ends the subscription. It is safe to call more than once.
func (l *Listener) Close() {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		_ = l.sub.Close()
	})
}

// Done is closed when delivery has stopped, either because of Close or
// because the subscription failed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Err is the transport error that ended delivery, or nil after Close. Only
// meaningful once Done is closed.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
