// Package batch owns the dirty-actor set, the debounce timer and the apply
// step that turns engine verdicts into persisted progress, multiplier
// adjustments and notifications.
//
// Flow: HandleEvent/MarkDirty → debounce → Flush → Snapshot → Engine → Apply.
// At most one flush runs at a time. An actor marked while a flush is running
// lands in the next flush.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthboard/awards/internal/app/awards"
	"github.com/hearthboard/awards/internal/domain"
	"github.com/hearthboard/awards/internal/infra/metrics"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config tunes debouncing and apply retries.
type Config struct {
	Debounce        time.Duration // quiet period after the last mark before a flush
	MaxWait         time.Duration // cap from the first mark; 0 disables the cap
	MaxApplyRetries int           // consecutive snapshot or apply failures before an actor is dropped
}

// DefaultConfig returns production batch defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:        2 * time.Second,
		MaxWait:         30 * time.Second,
		MaxApplyRetries: 5,
	}
}

// Deps are the collaborators a Manager reads from and writes to.
type Deps struct {
	Source      domain.SnapshotSource
	Catalog     domain.Catalog
	Store       domain.ProgressStore
	Multipliers domain.MultiplierAdjuster
	Notifier    domain.Notifier
	Logger      *slog.Logger
	Clock       func() time.Time // defaults to time.Now
}

// ─── Flush Result ───────────────────────────────────────────────────────────

// FlushResult summarizes one flush.
type FlushResult struct {
	ID             string        `json:"id"`
	Trigger        string        `json:"trigger"`
	Actors         int           `json:"actors"`
	Applied        int           `json:"applied"`
	SnapshotFailed int           `json:"snapshot_failed"`
	ApplyFailed    int           `json:"apply_failed"`
	Notifications  int           `json:"notifications"`
	Skipped        int           `json:"skipped"`
	Duration       time.Duration `json:"duration"`
}

// ─── Manager ────────────────────────────────────────────────────────────────

// Manager coalesces change notifications into debounced evaluation passes.
type Manager struct {
	cfg    Config
	deps   Deps
	engine *awards.Engine
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	dirty     map[string]struct{}
	timer     *time.Timer
	timerGen  uint64 // bumped whenever the pending timer is replaced or dropped
	firstMark time.Time
	failures  map[string]int
	ctx       context.Context
	running   bool
	stopped   bool

	flushMu sync.Mutex     // serializes flushes
	wg      sync.WaitGroup // in-flight flushes
}

// NewManager creates a manager. Call Start before marks can trigger flushes.
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	if cfg.MaxApplyRetries < 0 {
		cfg.MaxApplyRetries = 0
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		engine:   awards.NewEngine(logger),
		logger:   logger.With("component", "batch"),
		now:      clock,
		dirty:    make(map[string]struct{}),
		failures: make(map[string]int),
		ctx:      context.Background(),
	}
}

// Start enables timer-driven flushes. Flushes fired by the timer run with
// ctx. Actors marked before Start are scheduled immediately.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return domain.ErrManagerStopped
	}
	m.ctx = ctx
	m.running = true
	if len(m.dirty) > 0 {
		m.scheduleLocked()
	}
	m.logger.Info("batch manager started",
		"debounce", m.cfg.Debounce, "max_wait", m.cfg.MaxWait)
	return nil
}

// Stop cancels any pending flush, waits for an in-flight flush to finish and
// rejects all later marks and flushes. Pending dirty actors are dropped.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.running = false
	m.cancelTimerLocked()
	dropped := len(m.dirty)
	m.dirty = make(map[string]struct{})
	metrics.DirtyActors.Set(0)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("batch manager stopped", "dropped_actors", dropped)
}

// Pending returns the number of actors waiting for the next flush.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dirty)
}

// ─── Dirty Tracking ─────────────────────────────────────────────────────────

// HandleEvent marks the event's actor dirty when the change kind can affect
// award outcomes.
func (m *Manager) HandleEvent(ev domain.ChangeEvent) error {
	if !ev.Kind.Relevant() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownChangeKind, ev.Kind)
	}
	return m.MarkDirty(ev.ActorID)
}

// MarkDirty adds an actor to the pending set and (re)arms the debounce timer.
// Repeated marks coalesce into one flush.
func (m *Manager) MarkDirty(actorID string) error {
	if actorID == "" {
		return fmt.Errorf("%w: empty actor id", domain.ErrActorNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return domain.ErrManagerStopped
	}
	m.dirty[actorID] = struct{}{}
	metrics.DirtyActors.Set(float64(len(m.dirty)))
	if m.running {
		m.scheduleLocked()
	}
	return nil
}

// scheduleLocked arms the timer for Debounce from now, but never later than
// MaxWait after the first mark of the current batch.
func (m *Manager) scheduleLocked() {
	now := m.now()
	if m.timer == nil {
		m.firstMark = now
	}
	delay := m.cfg.Debounce
	if m.cfg.MaxWait > 0 {
		if remaining := m.firstMark.Add(m.cfg.MaxWait).Sub(now); remaining < delay {
			delay = max(remaining, 0)
		}
	}

	if m.timer != nil {
		m.timer.Stop()
	}
	m.timerGen++
	gen := m.timerGen
	m.timer = time.AfterFunc(delay, func() { m.onTimer(gen) })
}

func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
}

// onTimer runs on the timer goroutine. A stale generation means the timer
// was replaced or cancelled after it fired.
func (m *Manager) onTimer(gen uint64) {
	m.mu.Lock()
	if gen != m.timerGen || m.stopped {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	ctx := m.ctx
	m.wg.Add(1)
	m.mu.Unlock()

	defer m.wg.Done()
	if _, err := m.flush(ctx, "timer"); err != nil && !errors.Is(err, domain.ErrManagerStopped) {
		m.logger.Warn("timed flush failed", "error", err)
	}
}

// ─── Flush ──────────────────────────────────────────────────────────────────

// Flush evaluates every pending actor now, bypassing the debounce timer.
func (m *Manager) Flush(ctx context.Context) (FlushResult, error) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return FlushResult{}, domain.ErrManagerStopped
	}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	return m.flush(ctx, "manual")
}

func (m *Manager) flush(ctx context.Context, trigger string) (FlushResult, error) {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	// Swap out the pending set. Marks from here on go to the next flush.
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return FlushResult{}, domain.ErrManagerStopped
	}
	actors := make([]string, 0, len(m.dirty))
	for id := range m.dirty {
		actors = append(actors, id)
	}
	m.dirty = make(map[string]struct{})
	m.cancelTimerLocked()
	metrics.DirtyActors.Set(0)
	m.mu.Unlock()

	sort.Strings(actors)
	start := time.Now()
	res := FlushResult{ID: uuid.NewString(), Trigger: trigger, Actors: len(actors)}
	if len(actors) == 0 {
		return res, nil
	}

	catalog := m.deps.Catalog.Awards()
	log := m.logger.With("flush", res.ID)
	for i, actorID := range actors {
		if err := ctx.Err(); err != nil {
			for _, rest := range actors[i:] {
				_ = m.MarkDirty(rest)
			}
			return res, err
		}
		m.evaluateActor(ctx, log, catalog, actorID, &res)
	}

	res.Duration = time.Since(start)
	metrics.Flushes.WithLabelValues(trigger).Inc()
	metrics.FlushDuration.Observe(res.Duration.Seconds())
	log.Debug("flush complete",
		"trigger", trigger,
		"actors", res.Actors,
		"applied", res.Applied,
		"snapshot_failed", res.SnapshotFailed,
		"apply_failed", res.ApplyFailed,
		"notifications", res.Notifications,
		"duration", res.Duration)
	return res, nil
}

// evaluateActor builds one snapshot, evaluates the catalog against it and
// applies the verdicts. Failures stay with this actor.
func (m *Manager) evaluateActor(ctx context.Context, log *slog.Logger, catalog []domain.AwardDefinition, actorID string, res *FlushResult) {
	snap, err := m.deps.Source.Snapshot(ctx, actorID, m.now())
	if err != nil {
		res.SnapshotFailed++
		metrics.ActorEvaluations.WithLabelValues("snapshot_failed").Inc()
		if errors.Is(err, domain.ErrSnapshotUnavailable) {
			m.retry(log, actorID, "snapshot", err)
			return
		}
		log.Warn("snapshot failed, actor skipped", "actor", actorID, "error", err)
		m.mu.Lock()
		delete(m.failures, actorID)
		m.mu.Unlock()
		return
	}

	report := m.engine.EvaluateReport(snap, catalog)
	res.Skipped += len(report.Skipped)
	for _, sk := range report.Skipped {
		metrics.SkippedAwards.WithLabelValues(sk.Reason()).Inc()
	}

	if err := m.apply(ctx, catalog, report.Verdicts); err != nil {
		res.ApplyFailed++
		metrics.ActorEvaluations.WithLabelValues("apply_failed").Inc()
		metrics.ApplyFailures.Inc()
		m.retry(log, actorID, "apply", err)
		return
	}

	m.mu.Lock()
	delete(m.failures, actorID)
	m.mu.Unlock()
	res.Applied++
	for _, v := range report.Verdicts {
		if v.Notify {
			res.Notifications++
			metrics.Verdicts.WithLabelValues(string(v.Class), string(v.NotifyReason)).Inc()
		}
	}
	metrics.ActorEvaluations.WithLabelValues("ok").Inc()
}

// retry re-marks an actor whose snapshot or apply failed, up to
// MaxApplyRetries consecutive failures across both stages.
func (m *Manager) retry(log *slog.Logger, actorID, stage string, cause error) {
	m.mu.Lock()
	m.failures[actorID]++
	attempt := m.failures[actorID]
	exhausted := attempt > m.cfg.MaxApplyRetries
	if exhausted {
		delete(m.failures, actorID)
	}
	m.mu.Unlock()

	if exhausted {
		metrics.ActorEvaluations.WithLabelValues("dropped").Inc()
		log.Error("retries exhausted, actor dropped until next change",
			"actor", actorID, "stage", stage, "attempts", attempt, "error", cause)
		return
	}
	log.Error("evaluation failed, actor re-marked",
		"actor", actorID, "stage", stage, "attempt", attempt, "error", cause)
	if err := m.MarkDirty(actorID); err != nil {
		log.Warn("re-mark rejected", "actor", actorID, "error", err)
	}
}

// ─── Apply ──────────────────────────────────────────────────────────────────

// Apply persists one actor's verdicts. Every step is idempotent, so a
// failed Apply can be repeated with the same verdicts.
func (m *Manager) Apply(ctx context.Context, verdicts []domain.Verdict) error {
	return m.apply(ctx, m.deps.Catalog.Awards(), verdicts)
}

// apply runs notify, multiplier and save for each verdict in that order. The
// record is saved last so a failure earlier leaves the stored state untouched
// and the next pass recomputes the same verdict.
func (m *Manager) apply(ctx context.Context, catalog []domain.AwardDefinition, verdicts []domain.Verdict) error {
	names := make(map[string]string, len(catalog))
	for _, def := range catalog {
		names[def.ID] = def.Name
	}

	for _, v := range verdicts {
		if v.Notify {
			n := domain.AwardNotification{
				ID:        uuid.NewString(),
				ActorID:   v.ActorID,
				AwardID:   v.AwardID,
				AwardName: names[v.AwardID],
				Class:     v.Class,
				Reason:    v.NotifyReason,
				Tier:      v.Tier,
				DedupeKey: v.DedupeKey(),
				CreatedAt: m.now(),
			}
			if err := m.deps.Notifier.Emit(ctx, n); err != nil {
				return fmt.Errorf("%w: notify %s/%s: %w", domain.ErrApplyFailed, v.ActorID, v.AwardID, err)
			}
		}
		if v.TierChanged() {
			if err := m.deps.Multipliers.SetMultiplier(ctx, v.ActorID, v.AwardID, v.Multiplier); err != nil {
				return fmt.Errorf("%w: multiplier %s/%s: %w", domain.ErrApplyFailed, v.ActorID, v.AwardID, err)
			}
		}
		if v.Changed {
			if err := m.deps.Store.SaveProgress(ctx, v.Record); err != nil {
				return fmt.Errorf("%w: save %s/%s: %w", domain.ErrApplyFailed, v.ActorID, v.AwardID, err)
			}
		}
	}
	return nil
}

// ─── Dry Run ────────────────────────────────────────────────────────────────

// DryRun evaluates one actor exactly as a flush would and returns the
// report without applying anything.
func (m *Manager) DryRun(ctx context.Context, actorID string) (awards.Report, error) {
	snap, err := m.deps.Source.Snapshot(ctx, actorID, m.now())
	if err != nil {
		return awards.Report{}, err
	}
	return m.engine.EvaluateReport(snap, m.deps.Catalog.Awards()), nil
}
