package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultStreamMaxLen = 100000

// RedisStreamConfig configures a [RedisStreamSink].
type RedisStreamConfig struct {
	Stream string
	// MaxLen approximately caps the stream length. Zero means 100k.
	MaxLen int64
}

// RedisStreamSink appends events to a Redis stream with XADD.
type RedisStreamSink struct {
	redis  redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamSink returns a sink writing to cfg.Stream
// ("widget:audit" if empty).
func NewRedisStreamSink(client redis.UniversalClient, cfg RedisStreamConfig) *RedisStreamSink {
	if cfg.Stream == "" {
		cfg.Stream = "widget:audit"
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = defaultStreamMaxLen
	}
	return &RedisStreamSink{redis: client, stream: cfg.Stream, maxLen: cfg.MaxLen}
}

// Write implements [Sink].
func (s *RedisStreamSink) Write(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":    event.EventID,
			"type":  event.EventType,
			"event": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("audit: xadd %s: %w", s.stream, err)
	}
	return nil
}
