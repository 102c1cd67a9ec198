// Package redisfeed publishes the control loop's event stream to Redis
// so an external dashboard or alerting process can tail it, grounded on
// this system's original pair-metadata publisher's redis.NewClient
// wiring, generalized from HSET/ZADD pair bookkeeping to XADD-ing the
// generic events.Event record this system emits.
package redisfeed

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/you/arbcore/internal/events"
)

// Config configures the Redis connection and stream name.
type Config struct {
	Addr     string
	DB       int
	Username string
	Password string
	Stream   string
	MaxLen   int64
}

// DefaultConfig returns the stream name and trim length this system
// ships with out of the box.
func DefaultConfig() Config {
	return Config{
		Addr:   "127.0.0.1:6379",
		Stream: "arbcore:events",
		MaxLen: 100000,
	}
}

// Sink implements events.Sink by XADD-ing every event to a Redis
// stream, trimmed to approximately MaxLen entries. Field values are
// flattened to strings since Redis streams only carry string fields.
type Sink struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewSink constructs a Sink from cfg. The Redis client is lazily
// connected on first use by the go-redis driver.
func NewSink(cfg Config) *Sink {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	stream := cfg.Stream
	if stream == "" {
		stream = "arbcore:events"
	}
	return &Sink{rdb: rdb, stream: stream, maxLen: cfg.MaxLen}
}

// Handle implements events.Sink. Errors are swallowed: the control loop
// must never stall or fail a trade because the observability stream is
// unreachable.
func (s *Sink) Handle(ev events.Event) {
	values := map[string]interface{}{
		"kind":      string(ev.Kind),
		"ts_ms":     strconv.FormatInt(ev.Ts.UnixMilli(), 10),
		"pair":      ev.Pair,
		"signal_id": ev.SignalID,
	}
	for k, v := range ev.Data {
		values["data_"+k] = toString(v)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: values,
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	_ = s.rdb.XAdd(context.Background(), args).Err()
}

// Close releases the underlying Redis connection pool.
func (s *Sink) Close() error {
	return s.rdb.Close()
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
