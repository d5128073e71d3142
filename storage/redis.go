package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-sync/domain"
)

// DefaultUpdatesChannel is the pub/sub channel announcing document writes.
const DefaultUpdatesChannel = "board-updates"

// RedisStore keeps board documents as JSON values and announces every write
// on a pub/sub channel with the document path as payload.
type RedisStore struct {
	redis          *redis.Client
	channel        string
	logger         *log.Logger
	reconnectDelay time.Duration
}

// NewRedisStore creates a store on top of the given client.
func NewRedisStore(client *redis.Client, channel string, logger *log.Logger) *RedisStore {
	if client == nil {
		panic("storage.NewRedisStore: redis client is nil")
	}
	if channel == "" {
		channel = DefaultUpdatesChannel
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisStore{redis: client, channel: channel, logger: logger, reconnectDelay: time.Second}
}

// Write stores the document and publishes the change.
func (s *RedisStore) Write(ctx context.Context, path Path, board domain.Board) error {
	data, err := board.Encode()
	if err != nil {
		return err
	}
	key := path.String()
	if err := s.redis.Set(ctx, key, data, 0).Err(); err != nil {
		return err
	}
	if err := s.redis.Publish(ctx, s.channel, key).Err(); err != nil {
		s.logger.WithError(err).WithField("path", key).Error("unable to publish board update")
	}
	return nil
}

// Subscribe listens on the updates channel and emits a fresh snapshot for the
// initial state and for every update naming path.
func (s *RedisStore) Subscribe(ctx context.Context, path Path) (*Subscription, error) {
	sub := s.redis.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	key := path.String()
	return NewSubscription(ctx, func(ctx context.Context, emit EmitFunc) {
		defer func() { _ = sub.Close() }()
		if !emit(s.fetch(ctx, key)) {
			return
		}
		for {
			ch := sub.Channel()
		recv:
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok {
						break recv
					}
					if msg.Payload != key {
						continue
					}
					if !emit(s.fetch(ctx, key)) {
						return
					}
				}
			}
			s.logger.WithField("channel", s.channel).Error("pubsub channel closed, reconnecting")
			_ = sub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.reconnectDelay):
			}
			sub = s.redis.Subscribe(ctx, s.channel)
			// updates published while disconnected are picked up here
			if !emit(s.fetch(ctx, key)) {
				return
			}
		}
	}), nil
}

func (s *RedisStore) fetch(ctx context.Context, key string) Event {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Event{Snapshot: Snapshot{Exists: false}}
		}
		return Event{Err: err}
	}
	board, err := domain.Decode(data)
	if err != nil {
		return Event{Err: err}
	}
	return Event{Snapshot: Snapshot{Board: board, Exists: true}}
}
