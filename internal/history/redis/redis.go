// Package redis appends history events to a Redis stream.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/loykin/taskmgr/internal/history"
)

// DefaultMaxLen caps the stream; older entries are trimmed approximately.
const DefaultMaxLen = 100000

// Sink writes one XADD entry per event. Flat fields keep the stream
// readable from redis-cli; the full event is kept under "event".
type Sink struct {
	client *goredis.Client
	stream string
	maxLen int64
}

// New connects to a redis:// or rediss:// URL.
func New(rawURL, stream string, maxLen int64) (*Sink, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	if stream == "" {
		return nil, fmt.Errorf("redis sink: empty stream name")
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	c := goredis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Sink{client: c, stream: stream, maxLen: maxLen}, nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":       e.ID,
			"type":     string(e.Type),
			"pid":      strconv.FormatInt(e.Record.PID, 10),
			"priority": e.Record.Priority.String(),
			"strategy": e.Strategy,
			"event":    string(b),
		},
	}).Err()
}

func (s *Sink) Close() error { return s.client.Close() }
