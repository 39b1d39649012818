package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rewired-gh/betpulse/internal/logger"
)

// streamClient is the subset of *redis.Client used by RedisSource.
type streamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// RedisSource consumes events from a Redis stream through a consumer group.
// Messages carry the fields type, key and data (JSON payload) and are
// acknowledged after they have been applied.
type RedisSource struct {
	client     streamClient
	stream     string
	groupName  string
	consumerID string
	batch      int64
	block      time.Duration
	retryDelay time.Duration
}

func NewRedisSource(client streamClient, stream, groupName, consumerID string) *RedisSource {
	return &RedisSource{
		client:     client,
		stream:     stream,
		groupName:  groupName,
		consumerID: consumerID,
		batch:      50,
		block:      time.Second,
		retryDelay: time.Second,
	}
}

func (s *RedisSource) Consume(ctx context.Context) (<-chan Event, <-chan error) {
	eventCh := make(chan Event, s.batch)
	errorCh := make(chan error, 10)

	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.groupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		errorCh <- fmt.Errorf("failed to create consumer group: %w", err)
		close(eventCh)
		close(errorCh)
		return eventCh, errorCh
	}

	go func() {
		defer close(eventCh)
		defer close(errorCh)

		// Entries delivered to this consumer but never acked are replayed
		// first, then new entries are read with ">".
		cursor := "0"
		for ctx.Err() == nil {
			streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    s.groupName,
				Consumer: s.consumerID,
				Streams:  []string{s.stream, cursor},
				Count:    s.batch,
				Block:    s.block,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				s.report(ctx, errorCh, fmt.Errorf("error reading from stream: %w", err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.retryDelay):
				}
				continue
			}

			if cursor != ">" {
				var n int
				for _, stream := range streams {
					n += len(stream.Messages)
					if len(stream.Messages) > 0 {
						cursor = stream.Messages[len(stream.Messages)-1].ID
					}
				}
				if n == 0 {
					cursor = ">"
					continue
				}
				logger.Info("Replaying %d pending entries from %s", n, s.stream)
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					e, err := s.parseMessage(message)
					if err != nil {
						s.report(ctx, errorCh, fmt.Errorf("error parsing message %s: %w", message.ID, err))
						// malformed messages would be redelivered forever
						_ = s.client.XAck(ctx, s.stream, s.groupName, message.ID).Err()
						continue
					}
					select {
					case eventCh <- e:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return eventCh, errorCh
}

func (s *RedisSource) report(ctx context.Context, errorCh chan<- error, err error) {
	select {
	case errorCh <- err:
	case <-ctx.Done():
	}
}

func (s *RedisSource) parseMessage(xmsg redis.XMessage) (Event, error) {
	typ, _ := xmsg.Values["type"].(string)
	if !Type(typ).Known() {
		return Event{}, fmt.Errorf("unknown event type %q", typ)
	}
	data, ok := xmsg.Values["data"].(string)
	if !ok {
		return Event{}, fmt.Errorf("missing 'data' field in message")
	}
	if !json.Valid([]byte(data)) {
		return Event{}, fmt.Errorf("'data' field is not valid JSON")
	}
	key, _ := xmsg.Values["key"].(string)

	id := xmsg.ID
	return Event{
		ID:   id,
		Type: Type(typ),
		Key:  key,
		Data: json.RawMessage(data),
		ack: func(ctx context.Context) error {
			return s.client.XAck(ctx, s.stream, s.groupName, id).Err()
		},
	}, nil
}
