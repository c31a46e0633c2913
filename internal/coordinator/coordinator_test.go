package coordinator_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/coordinator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	err  error
}

func newFakeStream() *fakeStream { return &fakeStream{done: make(chan struct{})} }

func (s *fakeStream) Done() <-chan struct{} { return s.done }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() { s.once.Do(func() { close(s.done) }) }

func (s *fakeStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.Close()
}

type fakeSource struct {
	mu       sync.Mutex
	value    int
	fetchErr error
	subErr   error
	onChange func()
	streams  []*fakeStream
	fetches  int
	subs     int
}

func (s *fakeSource) Fetch(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return s.value, s.fetchErr
}

func (s *fakeSource) Subscribe(ctx context.Context, onChange func()) (coordinator.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs++
	if s.subErr != nil {
		return nil, s.subErr
	}
	st := newFakeStream()
	s.onChange = onChange
	s.streams = append(s.streams, st)
	return st, nil
}

func (s *fakeSource) set(value int) {
	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
}

func (s *fakeSource) setSubErr(err error) {
	s.mu.Lock()
	s.subErr = err
	s.mu.Unlock()
}

func (s *fakeSource) setFetchErr(err error) {
	s.mu.Lock()
	s.fetchErr = err
	s.mu.Unlock()
}

// change mutates the value and fires the live notification.
func (s *fakeSource) change(value int) {
	s.mu.Lock()
	s.value = value
	fn := s.onChange
	s.mu.Unlock()
	fn()
}

func (s *fakeSource) lastStream() *fakeStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams[len(s.streams)-1]
}

func (s *fakeSource) subscribeAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs
}

func (s *fakeSource) streamCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

type fakeProjection struct {
	mu     sync.Mutex
	value  int
	resets int
}

func (p *fakeProjection) Replace(v int) {
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
}

func (p *fakeProjection) Reset() {
	p.mu.Lock()
	p.value = 0
	p.resets++
	p.mu.Unlock()
}

func (p *fakeProjection) get() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func fastOptions() coordinator.Options {
	return coordinator.Options{
		RefetchPerSecond: 1000,
		InitialBackoff:   5 * time.Millisecond,
		MaxBackoff:       20 * time.Millisecond,
		DegradedAfter:    2,
	}
}

func TestCoordinator_StartSeedsProjection(t *testing.T) {
	src := &fakeSource{value: 7}
	proj := &fakeProjection{}
	c := coordinator.New[int]("test", src, proj, fastOptions())
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, 7, proj.get())
	assert.Equal(t, coordinator.Synced, c.State())
	assert.Equal(t, 1, src.streamCount(), "stream opened once")
}

func TestCoordinator_LiveChangeTriggersRefetch(t *testing.T) {
	src := &fakeSource{value: 1}
	proj := &fakeProjection{}
	var changes int32
	opts := fastOptions()
	opts.OnChange = func() { atomic.AddInt32(&changes, 1) }
	c := coordinator.New[int]("test", src, proj, opts)
	defer c.Close()
	require.NoError(t, c.Start(context.Background()))

	src.change(2)

	assert.Eventually(t, func() bool { return proj.get() == 2 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&changes), int32(2))
}

func TestCoordinator_NonTransientStartFailure(t *testing.T) {
	src := &fakeSource{subErr: apperror.Forbidden("not a participant")}
	c := coordinator.New[int]("test", src, &fakeProjection{}, fastOptions())
	defer c.Close()

	err := c.Start(context.Background())

	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodePermissionDenied))
	assert.Equal(t, coordinator.Disconnected, c.State())
}

func TestCoordinator_TransientStartFailureKeepsRetrying(t *testing.T) {
	src := &fakeSource{value: 3, subErr: apperror.Unavailable("broker down")}
	proj := &fakeProjection{}
	c := coordinator.New[int]("test", src, proj, fastOptions())
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, coordinator.Reconnecting, c.State())

	src.setSubErr(nil)

	assert.Eventually(t, func() bool { return c.State() == coordinator.Synced }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, proj.get())
}

func TestCoordinator_ReconnectCatchesUp(t *testing.T) {
	// Arrange
	src := &fakeSource{value: 1}
	proj := &fakeProjection{}
	c := coordinator.New[int]("test", src, proj, fastOptions())
	defer c.Close()
	require.NoError(t, c.Start(context.Background()))

	// Act: the stream drops, a change happens while nobody is listening,
	// then the stream comes back.
	src.setSubErr(apperror.Unavailable("broker down"))
	src.lastStream().fail(apperror.Unavailable("connection reset"))
	src.set(5)

	assert.Eventually(t, c.Degraded, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, proj.get(), "stale data stays visible while degraded")

	src.setSubErr(nil)

	// Assert
	assert.Eventually(t, func() bool { return c.State() == coordinator.Synced }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, proj.get())
	assert.False(t, c.Degraded())
	assert.NoError(t, c.LastError())
}

func TestCoordinator_ReconnectStopsOnPermanentFailure(t *testing.T) {
	// Arrange
	src := &fakeSource{value: 3}
	proj := &fakeProjection{}
	c := coordinator.New[int]("test", src, proj, fastOptions())
	defer c.Close()
	require.NoError(t, c.Start(context.Background()))

	// Act: access is revoked while the stream is down.
	src.setSubErr(apperror.Forbidden("not a participant"))
	src.lastStream().fail(apperror.Unavailable("connection reset"))

	// Assert
	assert.Eventually(t, func() bool { return c.State() == coordinator.Disconnected }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, proj.get())
	assert.False(t, c.Degraded())
	assert.True(t, apperror.Is(c.LastError(), apperror.CodePermissionDenied))

	attempts := src.subscribeAttempts()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, attempts, src.subscribeAttempts(), "no further reconnect attempts")
	assert.Equal(t, coordinator.Disconnected, c.State())
}

func TestCoordinator_RefetchNotFoundResets(t *testing.T) {
	src := &fakeSource{value: 4}
	proj := &fakeProjection{}
	c := coordinator.New[int]("test", src, proj, fastOptions())
	defer c.Close()
	require.NoError(t, c.Start(context.Background()))

	src.setFetchErr(apperror.NotFound("conversation not found"))
	c.Refresh()

	assert.Eventually(t, func() bool { return proj.get() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, apperror.Is(c.LastError(), apperror.CodeNotFound))
}

func TestCoordinator_CloseStopsDelivery(t *testing.T) {
	src := &fakeSource{value: 1}
	proj := &fakeProjection{}
	var afterClose atomic.Bool
	var lateChange atomic.Bool
	opts := fastOptions()
	opts.OnChange = func() {
		if afterClose.Load() {
			lateChange.Store(true)
		}
	}
	c := coordinator.New[int]("test", src, proj, opts)
	require.NoError(t, c.Start(context.Background()))
	stream := src.lastStream()

	c.Close()
	afterClose.Store(true)
	c.Close()

	select {
	case <-stream.Done():
	default:
		t.Fatal("stream left open after Close")
	}
	src.set(9)
	c.Refresh()
	c.Update(func() { proj.Replace(9) })
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, coordinator.Closed, c.State())
	assert.Equal(t, 0, proj.get())
	assert.False(t, lateChange.Load())

	err := c.Start(context.Background())
	assert.True(t, apperror.IsTransient(err))
}

func TestCoordinator_CloseWhileReconnecting(t *testing.T) {
	src := &fakeSource{subErr: apperror.Unavailable("broker down")}
	c := coordinator.New[int]("test", src, &fakeProjection{}, fastOptions())
	require.NoError(t, c.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked while reconnecting")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "synced", coordinator.Synced.String())
	assert.Equal(t, "reconnecting", coordinator.Reconnecting.String())
	assert.Equal(t, "unknown", coordinator.State(99).String())
}
