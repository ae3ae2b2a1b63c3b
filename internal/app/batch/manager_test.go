package batch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hearthboard/awards/internal/app/batch"
	"github.com/hearthboard/awards/internal/domain"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

// household is an in-memory SnapshotSource, ProgressStore, MultiplierAdjuster
// and Notifier.
type household struct {
	mu          sync.Mutex
	balances    map[string]float64
	missing     map[string]bool
	progress    map[string]map[string]domain.ProgressRecord
	multipliers map[string]float64
	notes       map[string]domain.AwardNotification // by dedupe key
	emits       int
	calls       map[string]int
	saveFails   int  // remaining SaveProgress failures
	snapFails   int  // remaining transient Snapshot failures
	alwaysFail  bool // every SaveProgress fails
	saveCalls   int
	gate        chan struct{} // when set, Snapshot blocks until closed
	entered     chan string
}

func newHousehold() *household {
	return &household{
		balances:    make(map[string]float64),
		missing:     make(map[string]bool),
		progress:    make(map[string]map[string]domain.ProgressRecord),
		multipliers: make(map[string]float64),
		notes:       make(map[string]domain.AwardNotification),
		calls:       make(map[string]int),
	}
}

func (h *household) Snapshot(_ context.Context, actorID string, now time.Time) (domain.ActivitySnapshot, error) {
	h.mu.Lock()
	h.calls[actorID]++
	gate, entered := h.gate, h.entered
	h.mu.Unlock()

	if entered != nil {
		entered <- actorID
	}
	if gate != nil {
		<-gate
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.missing[actorID] {
		return domain.ActivitySnapshot{}, domain.ErrActorNotFound
	}
	if h.snapFails > 0 {
		h.snapFails--
		return domain.ActivitySnapshot{}, fmt.Errorf("%w: database is locked", domain.ErrSnapshotUnavailable)
	}
	s := domain.ActivitySnapshot{
		ActorID:  actorID,
		Now:      now,
		Balance:  h.balances[actorID],
		Progress: make(map[string]domain.ProgressRecord),
	}
	for id, rec := range h.progress[actorID] {
		s.Progress[id] = rec
	}
	return s, nil
}

func (h *household) SaveProgress(_ context.Context, rec domain.ProgressRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saveCalls++
	if h.alwaysFail {
		return errors.New("disk full")
	}
	if h.saveFails > 0 {
		h.saveFails--
		return errors.New("database is locked")
	}
	if h.progress[rec.ActorID] == nil {
		h.progress[rec.ActorID] = make(map[string]domain.ProgressRecord)
	}
	h.progress[rec.ActorID][rec.AwardID] = rec
	return nil
}

func (h *household) ListProgress(_ context.Context, actorID string) ([]domain.ProgressRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.ProgressRecord
	for _, rec := range h.progress[actorID] {
		out = append(out, rec)
	}
	return out, nil
}

func (h *household) SetMultiplier(_ context.Context, actorID, awardID string, m float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.multipliers[actorID+"/"+awardID] = m
	return nil
}

func (h *household) Emit(_ context.Context, n domain.AwardNotification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.emits++
	if _, ok := h.notes[n.DedupeKey]; !ok {
		h.notes[n.DedupeKey] = n
	}
	return nil
}

func (h *household) setBalance(actorID string, b float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.balances[actorID] = b
}

func (h *household) callsFor(actorID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[actorID]
}

func (h *household) record(actorID, awardID string) (domain.ProgressRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.progress[actorID][awardID]
	return rec, ok
}

func (h *household) notificationCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.notes)
}

type staticCatalog []domain.AwardDefinition

func (c staticCatalog) Awards() []domain.AwardDefinition { return c }

var testCatalog = staticCatalog{
	{
		ID: "century", Name: "Century", Class: domain.ClassBadge, Kind: domain.KindOneTime,
		Targets: []domain.Target{{Type: domain.TargetPoints, Threshold: 100}},
	},
	{
		ID: "saver", Name: "Saver", Class: domain.ClassBadge, Kind: domain.KindCumulative,
		Targets: []domain.Target{{Type: domain.TargetPoints}},
		Tiers: []domain.Tier{
			{Name: "Bronze", Threshold: 50, Multiplier: 1.05},
			{Name: "Silver", Threshold: 200, Multiplier: 1.10},
		},
		Maintenance: &domain.Maintenance{Period: domain.PeriodWeekly},
	},
}

func newManager(t *testing.T, h *household, cfg batch.Config) *batch.Manager {
	t.Helper()
	m := batch.NewManager(cfg, batch.Deps{
		Source:      h,
		Catalog:     testCatalog,
		Store:       h,
		Multipliers: h,
		Notifier:    h,
	})
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
	return m
}

func fastConfig() batch.Config {
	return batch.Config{Debounce: 20 * time.Millisecond, MaxApplyRetries: 3}
}

// ═══════════════════════════════════════════════════════════════════════════
// Debounce & Coalescing
// ═══════════════════════════════════════════════════════════════════════════

func TestManager_MarksCoalesceIntoOneFlush(t *testing.T) {
	h := newHousehold()
	h.setBalance("kid-1", 120)
	m := newManager(t, h, fastConfig())

	for i := 0; i < 10; i++ {
		require.NoError(t, m.MarkDirty("kid-1"))
	}
	require.NoError(t, m.HandleEvent(domain.ChangeEvent{ActorID: "kid-2", Kind: domain.ChangeTaskApproved}))
	require.Equal(t, 2, m.Pending())

	require.Eventually(t, func() bool {
		return h.callsFor("kid-1") == 1 && h.callsFor("kid-2") == 1
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, h.callsFor("kid-1"), "one snapshot per actor per flush")
	require.Equal(t, 0, m.Pending())

	rec, ok := h.record("kid-1", "century")
	require.True(t, ok)
	require.True(t, rec.Earned)
	require.Equal(t, 1, rec.EarnCount)
}

func TestManager_MaxWaitBoundsDebounce(t *testing.T) {
	h := newHousehold()
	m := newManager(t, h, batch.Config{Debounce: 200 * time.Millisecond, MaxWait: 60 * time.Millisecond})

	deadline := time.Now().Add(400 * time.Millisecond)
	flushedWhileMarking := false
	for time.Now().Before(deadline) {
		require.NoError(t, m.MarkDirty("kid-1"))
		if h.callsFor("kid-1") > 0 {
			flushedWhileMarking = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, flushedWhileMarking, "continuous marks must not starve the flush")
}

func TestManager_MarkDuringFlushGoesToNextFlush(t *testing.T) {
	h := newHousehold()
	h.gate = make(chan struct{})
	h.entered = make(chan string, 8)
	m := newManager(t, h, batch.Config{Debounce: time.Hour})

	require.NoError(t, m.MarkDirty("kid-1"))
	done := make(chan batch.FlushResult)
	go func() {
		res, err := m.Flush(context.Background())
		if err != nil {
			t.Errorf("Flush: %v", err)
		}
		done <- res
	}()

	require.Equal(t, "kid-1", <-h.entered)
	require.NoError(t, m.MarkDirty("kid-1"))
	require.NoError(t, m.MarkDirty("kid-2"))
	require.Equal(t, 2, m.Pending(), "re-marked actor waits for the next flush")

	h.mu.Lock()
	gate := h.gate
	h.gate, h.entered = nil, nil
	h.mu.Unlock()
	close(gate)

	first := <-done
	require.Equal(t, 1, first.Actors)

	second, err := m.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, second.Actors)
	require.Equal(t, 2, h.callsFor("kid-1"))
	require.Equal(t, 1, h.callsFor("kid-2"))
}

func TestManager_StopCancelsPendingFlush(t *testing.T) {
	h := newHousehold()
	m := batch.NewManager(fastConfig(), batch.Deps{
		Source: h, Catalog: testCatalog, Store: h, Multipliers: h, Notifier: h,
	})
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.MarkDirty("kid-1"))
	m.Stop()

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 0, h.callsFor("kid-1"), "cancelled flush must not fire")
	require.ErrorIs(t, m.MarkDirty("kid-1"), domain.ErrManagerStopped)
	_, err := m.Flush(context.Background())
	require.ErrorIs(t, err, domain.ErrManagerStopped)
	require.ErrorIs(t, m.Start(context.Background()), domain.ErrManagerStopped)
}

func TestManager_UnknownEventKindRejected(t *testing.T) {
	m := newManager(t, newHousehold(), fastConfig())
	err := m.HandleEvent(domain.ChangeEvent{ActorID: "kid-1", Kind: "weather_changed"})
	require.ErrorIs(t, err, domain.ErrUnknownChangeKind)
	require.Equal(t, 0, m.Pending())
	require.ErrorIs(t, m.MarkDirty(""), domain.ErrActorNotFound)
}

// ═══════════════════════════════════════════════════════════════════════════
// Failure Isolation
// ═══════════════════════════════════════════════════════════════════════════

func TestManager_SnapshotFailureSkipsOnlyThatActor(t *testing.T) {
	h := newHousehold()
	h.missing["ghost"] = true
	h.setBalance("kid-1", 150)
	m := newManager(t, h, batch.Config{Debounce: time.Hour})

	require.NoError(t, m.MarkDirty("ghost"))
	require.NoError(t, m.MarkDirty("kid-1"))
	res, err := m.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.SnapshotFailed)
	require.Equal(t, 1, res.Applied)

	rec, ok := h.record("kid-1", "century")
	require.True(t, ok)
	require.True(t, rec.Earned)
	require.Equal(t, 0, m.Pending(), "unknown actors are not retried")
}

func TestManager_TransientSnapshotFailureRemarksActor(t *testing.T) {
	h := newHousehold()
	h.setBalance("kid-1", 120)
	h.snapFails = 2
	m := newManager(t, h, fastConfig())

	require.NoError(t, m.MarkDirty("kid-1"))
	require.Eventually(t, func() bool {
		rec, ok := h.record("kid-1", "century")
		return ok && rec.Earned
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 3, h.callsFor("kid-1"), "two failed snapshots then one good pass")
}

func TestManager_SnapshotRetriesExhausted(t *testing.T) {
	h := newHousehold()
	h.snapFails = 100
	m := newManager(t, h, batch.Config{Debounce: 10 * time.Millisecond, MaxApplyRetries: 2})

	require.NoError(t, m.MarkDirty("kid-1"))
	require.Eventually(t, func() bool {
		return h.callsFor("kid-1") == 3
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 3, h.callsFor("kid-1"), "first attempt plus two retries")
	require.Equal(t, 0, m.Pending())
}

func TestManager_ApplyFailureRemarksActor(t *testing.T) {
	h := newHousehold()
	h.setBalance("kid-1", 120)
	h.saveFails = 2
	m := newManager(t, h, fastConfig())

	require.NoError(t, m.MarkDirty("kid-1"))
	require.Eventually(t, func() bool {
		rec, ok := h.record("kid-1", "century")
		return ok && rec.Earned
	}, 2*time.Second, 5*time.Millisecond)

	require.GreaterOrEqual(t, h.callsFor("kid-1"), 3)
	require.Equal(t, 2, h.notificationCount(), "century and Bronze each notify exactly once")
}

func TestManager_ApplyRetriesExhausted(t *testing.T) {
	h := newHousehold()
	h.setBalance("kid-1", 120)
	h.alwaysFail = true
	m := newManager(t, h, batch.Config{Debounce: 10 * time.Millisecond, MaxApplyRetries: 2})

	require.NoError(t, m.MarkDirty("kid-1"))
	require.Eventually(t, func() bool {
		return h.callsFor("kid-1") == 3
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 3, h.callsFor("kid-1"), "first attempt plus two retries")
	require.Equal(t, 0, m.Pending())
}

// ═══════════════════════════════════════════════════════════════════════════
// Apply & Dry Run
// ═══════════════════════════════════════════════════════════════════════════

func TestManager_ApplyAdjustsMultiplierOnTierChange(t *testing.T) {
	h := newHousehold()
	h.setBalance("kid-1", 60)
	m := newManager(t, h, batch.Config{Debounce: time.Hour})

	require.NoError(t, m.MarkDirty("kid-1"))
	res, err := m.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Notifications)

	h.mu.Lock()
	got := h.multipliers["kid-1/saver"]
	h.mu.Unlock()
	require.Equal(t, 1.05, got)

	// Renewed progress toward Silver is saved once, silently.
	require.NoError(t, m.MarkDirty("kid-1"))
	res, err = m.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res.Notifications)

	// Nothing changed: the next pass writes nothing.
	h.mu.Lock()
	before := h.saveCalls
	h.mu.Unlock()
	require.NoError(t, m.MarkDirty("kid-1"))
	_, err = m.Flush(context.Background())
	require.NoError(t, err)
	h.mu.Lock()
	require.Equal(t, before, h.saveCalls)
	h.mu.Unlock()
}

func TestManager_ApplyIsIdempotent(t *testing.T) {
	h := newHousehold()
	h.setBalance("kid-1", 130)
	m := newManager(t, h, batch.Config{Debounce: time.Hour})

	report, err := m.DryRun(context.Background(), "kid-1")
	require.NoError(t, err)
	require.NoError(t, m.Apply(context.Background(), report.Verdicts))
	require.NoError(t, m.Apply(context.Background(), report.Verdicts))

	require.Equal(t, 2, h.notificationCount())
	h.mu.Lock()
	require.Equal(t, 4, h.emits)
	h.mu.Unlock()
}

func TestManager_DryRunHasNoSideEffects(t *testing.T) {
	h := newHousehold()
	h.setBalance("kid-1", 500)
	m := newManager(t, h, batch.Config{Debounce: time.Hour})

	report, err := m.DryRun(context.Background(), "kid-1")
	require.NoError(t, err)
	require.Len(t, report.Verdicts, 2)
	require.True(t, report.Verdicts[0].Notify)

	_, ok := h.record("kid-1", "century")
	require.False(t, ok)
	require.Equal(t, 0, h.notificationCount())
	require.Equal(t, 0, m.Pending())

	h.missing["ghost"] = true
	_, err = m.DryRun(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrActorNotFound)
}
