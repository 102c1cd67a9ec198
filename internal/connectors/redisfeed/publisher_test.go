package redisfeed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/you/arbcore/internal/events"
)

func TestSink_Handle_XAddsEvent(t *testing.T) {
	mr := miniredis.RunT(t)

	sink := NewSink(Config{Addr: mr.Addr(), Stream: "arbcore:events"})
	defer sink.Close()

	ev := events.New(events.KindBreakerTrip, time.Now()).
		WithPair("ARB-USDT").
		WithSignal("sig-1").
		WithData("detail", "max_failures")

	sink.Handle(ev)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	entries, err := rdb.XRange(context.Background(), "arbcore:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "breaker_trip", entries[0].Values["kind"])
	require.Equal(t, "ARB-USDT", entries[0].Values["pair"])
	require.Equal(t, "max_failures", entries[0].Values["data_detail"])
}

func TestSink_Handle_SwallowsUnreachableRedis(t *testing.T) {
	sink := NewSink(Config{Addr: "127.0.0.1:1"})
	defer sink.Close()

	require.NotPanics(t, func() {
		sink.Handle(events.New(events.KindSignalGenerated, time.Now()))
	})
}
