// Package awards decides which awards an actor newly earns, keeps or loses.
//
// The Engine is stateless: it reads one ActivitySnapshot and a catalog and
// returns verdicts. Persistence, multipliers and notifications belong to the
// caller. A fault in one award never stops evaluation of the others.
package awards

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/hearthboard/awards/internal/domain"
)

// Skip records an award that produced no verdict for this pass.
type Skip struct {
	AwardID string
	Err     error
}

// Reason is a short metric label for the skip cause.
func (s Skip) Reason() string {
	switch {
	case errors.Is(s.Err, domain.ErrMissingDefinition):
		return "missing_definition"
	case errors.Is(s.Err, domain.ErrMalformedTiers):
		return "malformed_tiers"
	case errors.Is(s.Err, domain.ErrUnknownTargetType):
		return "unknown_target"
	case errors.Is(s.Err, domain.ErrMalformedTarget):
		return "malformed_target"
	}
	return "error"
}

// Report is the full outcome of one evaluation pass for one actor.
type Report struct {
	ActorID  string
	Verdicts []domain.Verdict
	Skipped  []Skip
}

// Engine evaluates award catalogs against activity snapshots.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an engine. A nil logger discards log output.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{logger: logger.With("component", "awards")}
}

// Evaluate returns one verdict per evaluable award, in catalog order.
func (e *Engine) Evaluate(s domain.ActivitySnapshot, catalog []domain.AwardDefinition) []domain.Verdict {
	return e.EvaluateReport(s, catalog).Verdicts
}

// EvaluateReport is Evaluate plus the list of awards that were skipped.
func (e *Engine) EvaluateReport(s domain.ActivitySnapshot, catalog []domain.AwardDefinition) Report {
	report := Report{ActorID: s.ActorID}
	known := make(map[string]bool, len(catalog))

	for _, def := range catalog {
		known[def.ID] = true
		v, err := e.evaluate(s, def)
		if err != nil {
			var skip bool
			v, skip = e.onError(s, def, v, err)
			if skip {
				report.Skipped = append(report.Skipped, Skip{AwardID: def.ID, Err: err})
				continue
			}
		}
		report.Verdicts = append(report.Verdicts, v)
	}

	// Progress for awards that left the catalog is reported, never evaluated.
	var orphans []string
	for id := range s.Progress {
		if !known[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		err := fmt.Errorf("%w: %s", domain.ErrMissingDefinition, id)
		e.logger.Warn("progress references unknown award", "actor", s.ActorID, "award", id)
		report.Skipped = append(report.Skipped, Skip{AwardID: id, Err: err})
	}
	return report
}

// evaluate dispatches on class and kind.
func (e *Engine) evaluate(s domain.ActivitySnapshot, def domain.AwardDefinition) (domain.Verdict, error) {
	if err := def.Validate(); err != nil {
		return domain.Verdict{}, err
	}
	rec, _ := s.Record(def.ID)

	switch {
	case def.Class == domain.ClassChallenge:
		return evaluateChallenge(s, def, rec)
	case def.Kind == domain.KindCumulative:
		return evaluateCumulative(s, def, rec)
	case def.Kind == domain.KindRecurring:
		return evaluateRecurring(s, def, rec)
	case def.Kind == domain.KindOneTime:
		return evaluateOneTime(s, def, rec)
	}
	return domain.Verdict{}, fmt.Errorf("%w: award %s: kind %q", domain.ErrMalformedTarget, def.ID, def.Kind)
}

// onError decides whether a failed award still yields a not-met verdict.
// Bad targets on simple awards read as "not met"; anything structural, and
// any failure on a tiered award, skips the award for this pass.
func (e *Engine) onError(s domain.ActivitySnapshot, def domain.AwardDefinition, v domain.Verdict, err error) (domain.Verdict, bool) {
	targetFault := errors.Is(err, domain.ErrMalformedTarget) || errors.Is(err, domain.ErrUnknownTargetType)
	if targetFault && v.AwardID != "" && def.Kind != domain.KindCumulative {
		e.logger.Warn("award target treated as not met",
			"actor", s.ActorID, "award", def.ID, "error", err)
		return v, false
	}
	e.logger.Warn("award skipped", "actor", s.ActorID, "award", def.ID, "error", err)
	return v, true
}

// newVerdict seeds a verdict that leaves the record untouched.
func newVerdict(s domain.ActivitySnapshot, def domain.AwardDefinition, rec domain.ProgressRecord) domain.Verdict {
	return domain.Verdict{
		ActorID:      s.ActorID,
		AwardID:      def.ID,
		Class:        def.Class,
		Kind:         def.Kind,
		Tier:         rec.Tier,
		PreviousTier: rec.Tier,
		State:        rec.State,
		Record:       rec,
	}
}

// finish attaches the next record and marks whether it differs from prev.
func finish(v domain.Verdict, prev, next domain.ProgressRecord) domain.Verdict {
	v.Record = next
	v.Changed = !prev.Equal(next)
	v.ProgressRatio = domain.ClampRatio(v.ProgressRatio)
	return v
}
