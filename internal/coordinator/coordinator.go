// Package coordinator keeps client-side projections of conversations,
// messages and notifications in sync with the backend. Each projection is
// seeded by a full fetch and refreshed by a targeted refetch whenever its
// live stream reports a change; after a stream failure it reconnects with
// backoff and catches up with one more fetch.
package coordinator

import (
	"context"
	"sync"
	"time"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/config"

	"github.com/cenkalti/backoff/v4"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Synced
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Synced:
		return "synced"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Stream is an open live subscription. *realtime.Listener satisfies it.
type Stream interface {
	Done() <-chan struct{}
	Err() error
	Close()
}

// Source supplies snapshots of an aggregate and notifies about changes to it.
type Source[T any] interface {
	Fetch(ctx context.Context) (T, error)
	// Subscribe returns once the stream is open. onChange must not block.
	Subscribe(ctx context.Context, onChange func()) (Stream, error)
}

// SourceFuncs adapts a pair of functions to Source.
type SourceFuncs[T any] struct {
	FetchFunc     func(ctx context.Context) (T, error)
	SubscribeFunc func(ctx context.Context, onChange func()) (Stream, error)
}

func (s SourceFuncs[T]) Fetch(ctx context.Context) (T, error) { return s.FetchFunc(ctx) }

func (s SourceFuncs[T]) Subscribe(ctx context.Context, onChange func()) (Stream, error) {
	return s.SubscribeFunc(ctx, onChange)
}

// Projection receives snapshots. Replace swaps in a fresh snapshot, Reset
// drops everything when the coordinator closes.
type Projection[T any] interface {
	Replace(snapshot T)
	Reset()
}

type Options struct {
	// RefetchPerSecond caps refetches triggered by live events.
	RefetchPerSecond int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	// DegradedAfter consecutive failed reconnect attempts mark the
	// projection as stale.
	DegradedAfter int
	// OnChange runs after every projection update. It must not call Close.
	OnChange func()
}

func (o Options) withDefaults() Options {
	if o.RefetchPerSecond <= 0 {
		o.RefetchPerSecond = config.RefetchPerSecond
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = config.ReconnectInitialDelay
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = config.ReconnectMaxDelay
	}
	if o.DegradedAfter <= 0 {
		o.DegradedAfter = config.DegradedAfterFailures
	}
	return o
}

// Coordinator drives one projection through the connection lifecycle.
type Coordinator[T any] struct {
	name    string
	src     Source[T]
	proj    Projection[T]
	opts    Options
	limiter ratelimit.Limiter

	mu       sync.Mutex
	state    State
	stream   Stream
	degraded bool
	failures int
	lastErr  error

	// deliverMu is held while a projection update and its OnChange run, so
	// Close can wait for an in-flight delivery.
	deliverMu sync.Mutex

	kick      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	running   bool
	done      chan struct{}
	closeOnce sync.Once
}

func New[T any](name string, src Source[T], proj Projection[T], opts Options) *Coordinator[T] {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator[T]{
		name:    name,
		src:     src,
		proj:    proj,
		opts:    opts,
		limiter: ratelimit.New(opts.RefetchPerSecond, ratelimit.WithoutSlack),
		state:   Disconnected,
		kick:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start opens the live stream, then seeds the projection with a full fetch.
// The stream is opened first so that no change committed between the fetch
// and the subscription is missed. A transient failure leaves the
// coordinator reconnecting in the background; any other failure is
// returned and the coordinator stays disconnected.
func (c *Coordinator[T]) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return apperror.Unavailable(c.name + " is closed")
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.state = Connecting
	c.mu.Unlock()

	err := c.connect(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return nil
	}
	if err != nil && !apperror.IsTransient(err) {
		c.started = false
		c.state = Disconnected
		return err
	}
	if err != nil {
		jww.WARN.Printf("[%s] initial sync failed, retrying: %v", c.name, err)
		c.state = Reconnecting
	}
	c.running = true
	go c.run(err != nil)
	return nil
}

// connect subscribes, fetches and installs the result.
func (c *Coordinator[T]) connect(ctx context.Context) error {
	stream, err := c.src.Subscribe(ctx, c.signal)
	if err != nil {
		return err
	}
	snapshot, err := c.src.Fetch(ctx)
	if err != nil {
		stream.Close()
		return err
	}

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		stream.Close()
		return nil
	}
	c.proj.Replace(snapshot)
	c.stream = stream
	c.state = Synced
	c.failures = 0
	c.degraded = false
	c.lastErr = nil
	c.mu.Unlock()

	c.changed()
	return nil
}

// signal schedules a refetch. Bursts collapse into one pending refetch.
func (c *Coordinator[T]) signal() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Refresh schedules a refetch without waiting for a live event.
func (c *Coordinator[T]) Refresh() { c.signal() }

func (c *Coordinator[T]) run(reconnecting bool) {
	defer close(c.done)

	if reconnecting && !c.reconnect() {
		return
	}

	for {
		c.mu.Lock()
		stream := c.stream
		c.mu.Unlock()
		var streamDone <-chan struct{}
		if stream != nil {
			streamDone = stream.Done()
		}

		select {
		case <-c.ctx.Done():
			return
		case <-c.kick:
			c.limiter.Take()
			c.refetch()
		case <-streamDone:
			c.mu.Lock()
			if c.state == Closed {
				c.mu.Unlock()
				return
			}
			c.stream = nil
			c.state = Reconnecting
			c.mu.Unlock()
			jww.WARN.Printf("[%s] live stream lost: %v", c.name, stream.Err())
			c.deliverMu.Lock()
			c.changed()
			c.deliverMu.Unlock()
			if !c.reconnect() {
				return
			}
		}
	}
}

func (c *Coordinator[T]) refetch() {
	snapshot, err := c.src.Fetch(c.ctx)
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		if apperror.Is(err, apperror.CodeNotFound) {
			// The aggregate is gone, e.g. a deleted conversation.
			c.apply(func() { c.proj.Reset() })
			return
		}
		jww.WARN.Printf("[%s] refetch failed: %v", c.name, err)
		return
	}
	c.apply(func() { c.proj.Replace(snapshot) })
}

// reconnect retries connect with exponential backoff until it succeeds, the
// coordinator is closed, or connect fails with a non-transient error. It
// reports whether the coordinator is synced.
func (c *Coordinator[T]) reconnect() bool {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.MaxElapsedTime = 0

	op := func() error {
		err := c.connect(c.ctx)
		if err == nil {
			return nil
		}
		if c.ctx.Err() != nil || !apperror.IsTransient(err) {
			return backoff.Permanent(err)
		}
		c.fail(err)
		return err
	}
	notify := func(err error, next time.Duration) {
		jww.DEBUG.Printf("[%s] reconnect failed, next attempt in %s: %v", c.name, next, err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, c.ctx), notify); err != nil {
		if c.ctx.Err() == nil {
			c.giveUp(err)
		}
		return false
	}
	jww.INFO.Printf("[%s] live stream restored", c.name)
	return c.ctx.Err() == nil
}

// giveUp drops the projection after a non-transient reconnect failure, such
// as a conversation deleted while the stream was down. The coordinator stays
// disconnected until it is closed.
func (c *Coordinator[T]) giveUp(err error) {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return
	}
	c.state = Disconnected
	c.lastErr = err
	c.failures = 0
	c.degraded = false
	c.mu.Unlock()

	jww.WARN.Printf("[%s] giving up on reconnect: %v", c.name, err)
	c.apply(func() { c.proj.Reset() })
}

func (c *Coordinator[T]) fail(err error) {
	c.mu.Lock()
	c.failures++
	c.lastErr = err
	becameDegraded := !c.degraded && c.failures >= c.opts.DegradedAfter
	if becameDegraded {
		c.degraded = true
	}
	c.mu.Unlock()

	if becameDegraded {
		jww.WARN.Printf("[%s] degraded after %d failed reconnects", c.name, c.opts.DegradedAfter)
		c.deliverMu.Lock()
		c.changed()
		c.deliverMu.Unlock()
	}
}

// apply runs fn against the projection unless the coordinator is closed.
func (c *Coordinator[T]) apply(fn func()) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return
	}
	fn()
	c.mu.Unlock()

	c.changed()
}

// Update applies a local change to the projection, e.g. an optimistic write.
func (c *Coordinator[T]) Update(fn func()) { c.apply(fn) }

// changed must be called with deliverMu held.
func (c *Coordinator[T]) changed() {
	if c.opts.OnChange == nil {
		return
	}
	c.mu.Lock()
	closed := c.state == Closed
	c.mu.Unlock()
	if !closed {
		c.opts.OnChange()
	}
}

// Close stops the coordinator and releases the projection. No projection
// update or OnChange call happens after Close returns. Safe to call twice.
func (c *Coordinator[T]) Close() {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		c.state = Closed
		stream := c.stream
		c.stream = nil
		running := c.running
		c.mu.Unlock()

		if stream != nil {
			stream.Close()
		}

		// Wait for an in-flight delivery, then drop the data.
		c.deliverMu.Lock()
		c.mu.Lock()
		c.proj.Reset()
		c.mu.Unlock()
		c.deliverMu.Unlock()

		if running {
			<-c.done
		}
	})
}

func (c *Coordinator[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Degraded reports whether the projection may be stale because the live
// stream has been down for several reconnect attempts.
func (c *Coordinator[T]) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// LastError is the most recent fetch or connect failure, cleared on resync.
func (c *Coordinator[T]) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
