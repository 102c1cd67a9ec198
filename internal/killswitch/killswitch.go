// Package killswitch implements the sentinel-file emergency stop: the
// tick loop calls KillSwitch.Poll once per tick and skips that tick (no
// generation, no admission of new signals) while it reports true.
package killswitch

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/you/arbcore/internal/events"
)

// SentinelPath is the well-known OS temp path a parallel command
// channel creates or deletes to toggle the kill switch, matching the
// path convention this system has always used.
var SentinelPath = filepath.Join(os.TempDir(), "arb_bot_kill")

// KillSwitch polls SentinelPath and emits kill_switch_active /
// kill_switch_cleared events on edge transitions.
type KillSwitch struct {
	path string
	bus  *events.Bus

	mu     sync.Mutex
	active bool
}

// New constructs a KillSwitch watching path, publishing edge-transition
// events to bus (which may be nil to disable eventing).
func New(path string, bus *events.Bus) *KillSwitch {
	if path == "" {
		path = SentinelPath
	}
	return &KillSwitch{path: path, bus: bus}
}

// Poll checks the watched path's existence, updates internal state, and
// emits an event on transition. Call once per tick.
func (k *KillSwitch) Poll() bool {
	_, err := os.Stat(k.path)
	active := err == nil

	k.mu.Lock()
	changed := active != k.active
	k.active = active
	k.mu.Unlock()

	if changed && k.bus != nil {
		kind := events.KindKillSwitchCleared
		if active {
			kind = events.KindKillSwitchActive
		}
		k.bus.Publish(events.Event{Kind: kind})
	}
	return active
}

// Active reports the last-polled state without touching the filesystem.
func (k *KillSwitch) Active() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active
}
