package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	got chan Event
}

func (s recordingSink) Handle(ev Event) { s.got <- ev }

func TestEvent_WithHelpersReturnImmutableCopies(t *testing.T) {
	base := New(KindSignalGenerated, time.Now())
	tagged := base.WithPair("ARB/USDT").WithSignal("sig-1").WithData("score", 80.0)

	assert.Empty(t, base.Pair)
	assert.Empty(t, base.SignalID)
	assert.Empty(t, base.Data)

	assert.Equal(t, "ARB/USDT", tagged.Pair)
	assert.Equal(t, "sig-1", tagged.SignalID)
	assert.Equal(t, 80.0, tagged.Data["score"])
}

func TestEvent_WithDataAccumulatesKeys(t *testing.T) {
	ev := New(KindSignalScored, time.Now()).WithData("a", 1).WithData("b", 2)
	assert.Equal(t, 1, ev.Data["a"])
	assert.Equal(t, 2, ev.Data["b"])
}

func TestBus_PublishFansOutToEverySink(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a := recordingSink{got: make(chan Event, 1)}
	b := recordingSink{got: make(chan Event, 1)}
	bus.Subscribe(a, 1)
	bus.Subscribe(b, 1)

	bus.Publish(New(KindExecutionDone, time.Now()))

	select {
	case <-a.got:
	case <-time.After(time.Second):
		t.Fatal("sink a never received the event")
	}
	select {
	case <-b.got:
	case <-time.After(time.Second):
		t.Fatal("sink b never received the event")
	}
}

func TestBus_PublishDropsRatherThanBlocksOnFullSinkChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	blocked := make(chan struct{})
	sink := blockingSink{release: blocked}
	bus.Subscribe(sink, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(New(KindExecutionDone, time.Now()))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full sink channel")
	}
	close(blocked)
}

type blockingSink struct {
	release chan struct{}
}

func (b blockingSink) Handle(ev Event) {
	<-b.release
}
