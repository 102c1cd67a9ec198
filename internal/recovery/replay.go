package recovery

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/you/arbcore/internal/signal"
)

// ReplayConfig tunes the dedup/staleness/nonce guard.
type ReplayConfig struct {
	TTLSeconds     time.Duration
	MaxEntries     int
	NonceCheck     bool
	MaxAgeSeconds  time.Duration
	AuditLogSize   int
}

// DefaultReplayConfig matches this system's original replay-protection
// defaults.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		TTLSeconds:    60 * time.Second,
		MaxEntries:    10_000,
		NonceCheck:    true,
		MaxAgeSeconds: 30 * time.Second,
		AuditLogSize:  500,
	}
}

// AuditEntry is one row of the replay protection's accept/reject log.
type AuditEntry struct {
	SignalID string
	Pair     string
	Ts       time.Time
	Accepted bool
	Reason   string
}

type executedEntry struct {
	signalID string
	seenAt   time.Time
}

// ReplayProtection guards against re-admitting a signal: duplicate ID,
// stale age, or an out-of-order nonce (created_at used as a per-pair
// monotonic timestamp when no chain nonce is supplied).
type ReplayProtection struct {
	cfg ReplayConfig

	mu          sync.Mutex
	executed    *list.List // of *executedEntry, oldest at front
	byID        map[string]*list.Element
	pairNonces  map[string]time.Time
	audit       []AuditEntry
}

// NewReplayProtection constructs a ReplayProtection from cfg.
func NewReplayProtection(cfg ReplayConfig) *ReplayProtection {
	return &ReplayProtection{
		cfg:        cfg,
		executed:   list.New(),
		byID:       make(map[string]*list.Element),
		pairNonces: make(map[string]time.Time),
	}
}

// Check returns (allowed, reason) for sig, in the order: staleness,
// duplicate, nonce. Every call is recorded in the audit log regardless
// of outcome, and an accepted signal's ID is recorded so a later Check
// of the same ID is rejected as a duplicate.
func (r *ReplayProtection) Check(sig signal.Signal, now time.Time) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cleanup(now)

	age := now.Sub(sig.CreatedAt)
	if age > r.cfg.MaxAgeSeconds {
		reason := fmt.Sprintf("stale: age %s > max %s", age, r.cfg.MaxAgeSeconds)
		r.log(sig, now, false, reason)
		return false, reason
	}

	if _, exists := r.byID[sig.ID]; exists {
		reason := "duplicate signal_id"
		r.log(sig, now, false, reason)
		return false, reason
	}

	if r.cfg.NonceCheck {
		lastNonce := r.pairNonces[sig.Pair.Canonical()]
		if !sig.CreatedAt.After(lastNonce) {
			reason := fmt.Sprintf("nonce stale: ts %s <= last %s", sig.CreatedAt, lastNonce)
			r.log(sig, now, false, reason)
			return false, reason
		}
	}

	r.byID[sig.ID] = r.executed.PushBack(&executedEntry{signalID: sig.ID, seenAt: now})
	for r.executed.Len() > r.cfg.MaxEntries {
		oldest := r.executed.Front()
		r.executed.Remove(oldest)
		delete(r.byID, oldest.Value.(*executedEntry).signalID)
	}

	r.log(sig, now, true, "ok")
	return true, "ok"
}

// MarkExecuted records that sig was executed (or attempted), updating
// the per-pair nonce high-water-mark and evicting the oldest entry when
// over MaxEntries.
func (r *ReplayProtection) MarkExecuted(sig signal.Signal, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if el, exists := r.byID[sig.ID]; exists {
		r.executed.MoveToBack(el)
		el.Value.(*executedEntry).seenAt = now
	} else {
		el := r.executed.PushBack(&executedEntry{signalID: sig.ID, seenAt: now})
		r.byID[sig.ID] = el
	}

	pairKey := sig.Pair.Canonical()
	if sig.CreatedAt.After(r.pairNonces[pairKey]) {
		r.pairNonces[pairKey] = sig.CreatedAt
	}

	for r.executed.Len() > r.cfg.MaxEntries {
		oldest := r.executed.Front()
		r.executed.Remove(oldest)
		delete(r.byID, oldest.Value.(*executedEntry).signalID)
	}
}

// Stats reports current bookkeeping sizes for observability.
type Stats struct {
	TrackedIDs      int
	TrackedPairs    int
	AuditAccepted   int
	AuditRejected   int
}

// Stats returns a snapshot of the tracker's bookkeeping.
func (r *ReplayProtection) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var accepted int
	for _, e := range r.audit {
		if e.Accepted {
			accepted++
		}
	}
	return Stats{
		TrackedIDs:    len(r.byID),
		TrackedPairs:  len(r.pairNonces),
		AuditAccepted: accepted,
		AuditRejected: len(r.audit) - accepted,
	}
}

func (r *ReplayProtection) cleanup(now time.Time) {
	cutoff := now.Add(-r.cfg.TTLSeconds)
	for r.executed.Len() > 0 {
		front := r.executed.Front()
		entry := front.Value.(*executedEntry)
		if entry.seenAt.After(cutoff) {
			break
		}
		r.executed.Remove(front)
		delete(r.byID, entry.signalID)
	}
}

func (r *ReplayProtection) log(sig signal.Signal, now time.Time, accepted bool, reason string) {
	r.audit = append(r.audit, AuditEntry{
		SignalID: sig.ID,
		Pair:     sig.Pair.Canonical(),
		Ts:       now,
		Accepted: accepted,
		Reason:   reason,
	})
	if r.cfg.AuditLogSize > 0 && len(r.audit) > r.cfg.AuditLogSize {
		r.audit = r.audit[len(r.audit)-r.cfg.AuditLogSize:]
	}
}
