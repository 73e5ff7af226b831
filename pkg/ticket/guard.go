package ticket

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"go.uber.org/zap"

	"github.com/starcity-rp/whitelist-ticket-server/pkg/config"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/infra"
)

type Reason string

const (
	ReasonNew      Reason = "new"
	ReasonRetry    Reason = "retry"
	ReasonInflight Reason = "inflight"
	ReasonRecent   Reason = "recent"
)

// Admission is the guard's verdict on one creation attempt.
type Admission struct {
	Allowed bool
	Reason  Reason

	// Remaining cooldown, ceiling-rounded, set when Reason is recent.
	RetryAfterSeconds int
}

type guardRecord struct {
	inFlight      bool
	lastAttemptAt time.Time
	attempts      int
}

// Guard deduplicates ticket creation across retries and double-clicks.
// Only creation is guarded; claim/close races are resolved by the engine's
// check-then-set. Keys are insertion-ordered so the sweep scans oldest
// records first.
type Guard struct {
	mu      sync.Mutex
	records *linkedhashmap.Map
	stop    chan struct{}
	logger  *zap.SugaredLogger
}

func ProvideGuard(loggerFactory *infra.LoggerFactory) *Guard {
	return &Guard{
		records: linkedhashmap.New(),
		stop:    make(chan struct{}),
		logger:  loggerFactory.Create("IdempotencyGuard").Sugar(),
	}
}

// GuardKey derives the deduplication key for one logical creation request.
// The subject component is case-insensitive and trimmed so case/whitespace
// variation cannot bypass the guard.
func GuardKey(kind, scopeId, actorId, subject string) string {
	return fmt.Sprintf("%v:%v:%v:%v", kind, scopeId, actorId, strings.ToLower(strings.TrimSpace(subject)))
}

// Admit decides whether a creation for key may start. Every allowed
// admission must be paired with exactly one Release, on failure paths too.
func (g *Guard) Admit(key string, cooldown time.Duration) Admission {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	value, ok := g.records.Get(key)
	if !ok {
		g.records.Put(key, &guardRecord{inFlight: true, lastAttemptAt: now, attempts: 1})
		return Admission{Allowed: true, Reason: ReasonNew}
	}

	record := value.(*guardRecord)
	if record.inFlight {
		g.logger.Infof("rejected inflight key[%v]", key)
		return Admission{Allowed: false, Reason: ReasonInflight}
	}

	if age := now.Sub(record.lastAttemptAt); age < cooldown {
		remaining := int(math.Ceil((cooldown - age).Seconds()))
		g.logger.Infof("rejected recent key[%v] retryAfter[%vs]", key, remaining)
		return Admission{Allowed: false, Reason: ReasonRecent, RetryAfterSeconds: remaining}
	}

	record.inFlight = true
	record.lastAttemptAt = now
	record.attempts++
	return Admission{Allowed: true, Reason: ReasonRetry}
}

// Release marks the key's creation as finished. No-op for unknown keys, so
// callers can release unconditionally in a defer.
func (g *Guard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if value, ok := g.records.Get(key); ok {
		value.(*guardRecord).inFlight = false
	}
}

func (g *Guard) Run() {
	ticker := time.NewTicker(time.Duration(*config.CFG.GuardSweepSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Sweep(time.Duration(*config.CFG.GuardRetentionSeconds) * time.Second)
		case <-g.stop:
			return
		}
	}
}

func (g *Guard) Stop() {
	close(g.stop)
}

// Sweep removes records that are idle beyond retention and not in flight,
// bounding memory growth under sustained traffic.
func (g *Guard) Sweep(retention time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	var stale []interface{}
	it := g.records.Iterator()
	for it.Begin(); it.Next(); {
		key, record := it.Key(), it.Value().(*guardRecord)
		if !record.inFlight && record.lastAttemptAt.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		g.records.Remove(key)
	}
	if len(stale) > 0 {
		g.logger.Infof("swept %v idle idempotency records", len(stale))
	}
}

// Size reports the number of live records.
func (g *Guard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.records.Size()
}
