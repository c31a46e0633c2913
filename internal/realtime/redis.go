package realtime

import (
	"context"
	"sync"
	"time"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/config"
	"nexochat/backend/internal/models"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
	jww "github.com/spf13/jwalterweatherman"
)

// wireEvent is the CBOR payload published on Redis channels.
type wireEvent struct {
	Topic       string    `cbor:"1,keyasint"`
	Table       string    `cbor:"2,keyasint"`
	Type        string    `cbor:"3,keyasint"`
	RecordID    string    `cbor:"4,keyasint"`
	Record      []byte    `cbor:"5,keyasint,omitempty"`
	CommittedAt time.Time `cbor:"6,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("realtime: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("realtime: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeEvent(ev models.ChangeEvent) ([]byte, error) {
	return encMode.Marshal(wireEvent{
		Topic:       ev.Topic,
		Table:       ev.Table,
		Type:        string(ev.Type),
		RecordID:    ev.RecordID,
		Record:      ev.Record,
		CommittedAt: ev.CommittedAt,
	})
}

func decodeEvent(data []byte) (models.ChangeEvent, error) {
	var w wireEvent
	if err := decMode.Unmarshal(data, &w); err != nil {
		return models.ChangeEvent{}, err
	}
	return models.ChangeEvent{
		Topic:       w.Topic,
		Table:       w.Table,
		Type:        models.ChangeType(w.Type),
		RecordID:    w.RecordID,
		Record:      w.Record,
		CommittedAt: w.CommittedAt,
	}, nil
}

// RedisBroker fans events out across server instances with Redis Pub/Sub.
type RedisBroker struct {
	rdb *redis.Client
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, ev models.ChangeEvent) error {
	ev.Topic = topic
	payload, err := encodeEvent(ev)
	if err != nil {
		return apperror.Wrap(apperror.CodeInternal, "failed to encode change event", err)
	}
	if err := b.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return apperror.Wrap(apperror.CodeUnavailable, "failed to publish change event", err)
	}
	return nil
}

// Subscribe waits for Redis to confirm every channel before returning.
// Messages on an already confirmed channel may arrive in between; they are
// delivered first.
func (b *RedisBroker) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, topics...)
	var early []*redis.Message
	for confirmed := 0; confirmed < len(topics); {
		msg, err := ps.Receive(ctx)
		if err != nil {
			_ = ps.Close()
			return nil, apperror.Wrap(apperror.CodeUnavailable, "failed to subscribe", err)
		}
		switch m := msg.(type) {
		case *redis.Subscription:
			confirmed++
		case *redis.Message:
			early = append(early, m)
		case *redis.Pong:
		default:
			_ = ps.Close()
			return nil, apperror.Newf(apperror.CodeUnavailable, "unexpected subscribe reply %T", msg)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &redisSub{
		ps:     ps,
		cancel: cancel,
		ch:     make(chan models.ChangeEvent, config.SubscriptionBuffer),
	}
	go s.pump(runCtx, early)
	return s, nil
}

// Close is a no-op: the Redis client is owned by storage.Service.
func (b *RedisBroker) Close() error { return nil }

type redisSub struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
	ch     chan models.ChangeEvent

	mu     sync.Mutex
	err    error
	closed bool
	once   sync.Once
}

func (s *redisSub) pump(ctx context.Context, early []*redis.Message) {
	defer close(s.ch)

	for _, msg := range early {
		if !s.deliver(ctx, msg) {
			return
		}
	}
	for {
		msg, err := s.ps.ReceiveMessage(ctx)
		if err != nil {
			s.mu.Lock()
			if !s.closed {
				s.err = apperror.Wrap(apperror.CodeUnavailable, "live stream disconnected", err)
				jww.WARN.Printf("Redis subscription ended: %v", err)
			}
			s.mu.Unlock()
			_ = s.ps.Close()
			return
		}
		if !s.deliver(ctx, msg) {
			return
		}
	}
}

// deliver decodes msg onto the channel. It reports false once ctx is done.
func (s *redisSub) deliver(ctx context.Context, msg *redis.Message) bool {
	ev, err := decodeEvent([]byte(msg.Payload))
	if err != nil {
		jww.ERROR.Printf("ERROR: Failed to decode change event on %s: %v", msg.Channel, err)
		return true
	}
	select {
	case s.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *redisSub) C() <-chan models.ChangeEvent { return s.ch }

func (s *redisSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		err = s.ps.Close()
	})
	return err
}
