package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/you/arbcore/internal/events"
)

func newObservedSink() (*Sink, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewSink(zap.New(core)), logs
}

func TestHandle_RoutineEventLogsAtInfo(t *testing.T) {
	s, logs := newObservedSink()

	s.Handle(events.New(events.KindSignalQueued, time.Now()).WithPair("ARB/USDT").WithSignal("sig-1"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "signal_queued", entries[0].Message)
	assert.Equal(t, "ARB/USDT", entries[0].ContextMap()["pair"])
	assert.Equal(t, "sig-1", entries[0].ContextMap()["signal_id"])
}

func TestHandle_BreakerTripLogsAtWarn(t *testing.T) {
	s, logs := newObservedSink()

	s.Handle(events.New(events.KindBreakerTrip, time.Now()).WithPair("ARB/USDT"))

	require.Len(t, logs.All(), 1)
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}

func TestHandle_SafetyViolationLogsAtWarn(t *testing.T) {
	s, logs := newObservedSink()

	s.Handle(events.New(events.KindSafetyViolation, time.Now()).WithData("detail", "max_trade_usd: trade $30 exceeds absolute max $25"))

	require.Len(t, logs.All(), 1)
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Contains(t, entry.ContextMap()["detail"], "max_trade_usd")
}
