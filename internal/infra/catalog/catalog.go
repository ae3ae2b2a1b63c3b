// Package catalog loads award definitions and serves them to the engine.
// Catalogs are authored as TOML or YAML files; with no file configured the
// built-in household catalog is used.
package catalog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/hearthboard/awards/internal/app/criteria"
	"github.com/hearthboard/awards/internal/domain"
)

// file is the on-disk layout: a list of [[award]] tables in TOML or an
// awards: sequence in YAML.
type file struct {
	Awards []domain.AwardDefinition `toml:"award" yaml:"awards"`
}

// ─── Static Catalog ─────────────────────────────────────────────────────────

// Static is an immutable, validated catalog. It implements domain.Catalog.
type Static struct {
	awards []domain.AwardDefinition
	byID   map[string]int
	source string
}

// New validates defs and wraps them in a Static catalog. Iteration order is
// the order of defs.
func New(source string, defs []domain.AwardDefinition) (*Static, error) {
	c := &Static{
		awards: make([]domain.AwardDefinition, 0, len(defs)),
		byID:   make(map[string]int, len(defs)),
		source: source,
	}
	for _, def := range defs {
		def = normalize(def)
		if err := Validate(def); err != nil {
			return nil, err
		}
		if _, dup := c.byID[def.ID]; dup {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateAward, def.ID)
		}
		c.byID[def.ID] = len(c.awards)
		c.awards = append(c.awards, def)
	}
	return c, nil
}

// Awards returns the definitions in catalog order. Callers must not modify
// the returned slice.
func (c *Static) Awards() []domain.AwardDefinition {
	return c.awards
}

// Lookup finds a definition by id.
func (c *Static) Lookup(id string) (domain.AwardDefinition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.AwardDefinition{}, false
	}
	return c.awards[i], true
}

// Len returns the number of definitions.
func (c *Static) Len() int { return len(c.awards) }

// Source names where the catalog came from ("builtin" or a file path).
func (c *Static) Source() string { return c.source }

// ─── Loading ────────────────────────────────────────────────────────────────

// Load reads a catalog file. The format follows the extension: .toml, .yaml
// or .yml. An empty path returns the built-in catalog.
func Load(path string) (*Static, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	defs, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return New(path, defs)
}

// Parse decodes catalog bytes in the format named by ext.
func Parse(ext string, data []byte) ([]domain.AwardDefinition, error) {
	var f file
	switch strings.ToLower(ext) {
	case ".toml":
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return nil, fmt.Errorf("%w: unknown key %s", domain.ErrMalformedTarget, undec[0])
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q (want .toml, .yaml or .yml)", ext)
	}
	return f.Awards, nil
}

// Validate checks one definition: structure, every target against the
// criteria registry, and the maintenance target when set.
func Validate(def domain.AwardDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	for _, t := range def.Targets {
		if err := criteria.Validate(t); err != nil {
			return fmt.Errorf("award %s: %w", def.ID, err)
		}
	}
	if def.Maintenance != nil && def.Maintenance.Target.Type != "" {
		if err := criteria.Validate(def.Maintenance.Target); err != nil {
			return fmt.Errorf("award %s maintenance: %w", def.ID, err)
		}
	}
	return nil
}

// normalize applies authoring conveniences. A challenge end date given as a
// bare date covers that whole day.
func normalize(def domain.AwardDefinition) domain.AwardDefinition {
	if def.Class == domain.ClassChallenge && !def.EndDate.IsZero() && def.EndDate.Equal(domain.StartOfDay(def.EndDate)) {
		def.EndDate = domain.EndOfDay(def.EndDate)
	}
	if def.Name == "" {
		def.Name = def.ID
	}
	return def
}

// Save writes defs as TOML, the format Load reads back.
func Save(path string, defs []domain.AwardDefinition) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(file{Awards: defs}); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0600)
}

// ─── Built-in Catalog ───────────────────────────────────────────────────────

// Default returns the built-in household catalog.
func Default() *Static {
	c, err := New("builtin", builtin)
	if err != nil {
		panic(fmt.Sprintf("builtin catalog: %v", err))
	}
	return c
}

var bronzeSilverGold = []domain.Tier{
	{Name: "Bronze", Threshold: 50, Multiplier: 1.05},
	{Name: "Silver", Threshold: 200, MaintainThreshold: 150, Multiplier: 1.10},
	{Name: "Gold", Threshold: 500, MaintainThreshold: 400, Multiplier: 1.20},
}

// builtin is a small catalog covering every award family. Hosts normally
// ship their own file.
var builtin = []domain.AwardDefinition{
	// ─── Badges ───
	{
		ID: "century", Name: "Century", Icon: "💯", Class: domain.ClassBadge, Kind: domain.KindOneTime,
		Description: "Hold 100 points at once.",
		Targets:     []domain.Target{{Type: domain.TargetPoints, Threshold: 100}},
	},
	{
		ID: "saver", Name: "Saver", Icon: "🏦", Class: domain.ClassBadge, Kind: domain.KindCumulative,
		Description: "Keep a healthy balance. Tiers are re-checked every week.",
		Targets:     []domain.Target{{Type: domain.TargetPoints}},
		Tiers:       bronzeSilverGold,
		Maintenance: &domain.Maintenance{Period: domain.PeriodWeekly},
	},
	{
		ID: "earner", Name: "Earner", Icon: "⭐", Class: domain.ClassBadge, Kind: domain.KindCumulative,
		Description: "Earn points from chores each month.",
		Targets:     []domain.Target{{Type: domain.TargetCyclePoints, FromSourceOnly: true}},
		Tiers: []domain.Tier{
			{Name: "Helper", Threshold: 100, Multiplier: 1.02},
			{Name: "Hero", Threshold: 300, Multiplier: 1.05},
		},
		Maintenance: &domain.Maintenance{Period: domain.PeriodMonthly},
	},
	{
		ID: "busy-week", Name: "Busy Week", Icon: "🗓️", Class: domain.ClassBadge, Kind: domain.KindRecurring,
		Description: "Finish 10 chores in one cycle.",
		Targets:     []domain.Target{{Type: domain.TargetChoresCycle, Threshold: 10}},
	},

	// ─── Achievements ───
	{
		ID: "first-chore", Name: "First Chore", Icon: "🧹", Class: domain.ClassAchievement, Kind: domain.KindOneTime,
		Targets: []domain.Target{{Type: domain.TargetChoresTotal, Threshold: 1}},
	},
	{
		ID: "hundred-chores", Name: "Hundred Chores", Icon: "🏅", Class: domain.ClassAchievement, Kind: domain.KindOneTime,
		Targets: []domain.Target{{Type: domain.TargetChoresTotal, Threshold: 100}},
	},
	{
		ID: "laundry-pro", Name: "Laundry Pro", Icon: "🧺", Class: domain.ClassAchievement, Kind: domain.KindOneTime,
		Targets: []domain.Target{{Type: domain.TargetChoresOfType, TaskType: "laundry", Threshold: 20}},
	},
	{
		ID: "perfect-day", Name: "Perfect Day", Icon: "☀️", Class: domain.ClassAchievement, Kind: domain.KindOneTime,
		Description: "Finish every chore due today with nothing overdue.",
		Targets: []domain.Target{{
			Type: domain.TargetDailyCompletionStrict, PercentRequired: 1, OnlyDueToday: true,
		}},
	},
	{
		ID: "week-streak", Name: "Seven Straight", Icon: "🔥", Class: domain.ClassAchievement, Kind: domain.KindOneTime,
		Targets: []domain.Target{{Type: domain.TargetStreakDays, Threshold: 7, PercentRequired: 0.8}},
	},
	{
		ID: "steady-month", Name: "Steady Month", Icon: "📅", Class: domain.ClassAchievement, Kind: domain.KindOneTime,
		Targets: []domain.Target{{Type: domain.TargetStreakWeeks, Threshold: 4, PercentRequired: 0.75}},
	},
	{
		ID: "treat-yourself", Name: "Treat Yourself", Icon: "🎁", Class: domain.ClassAchievement, Kind: domain.KindOneTime,
		Targets: []domain.Target{{Type: domain.TargetRewardClaims, Threshold: 5}},
	},
	{
		ID: "bonus-hunter", Name: "Bonus Hunter", Icon: "🎯", Class: domain.ClassAchievement, Kind: domain.KindOneTime,
		Targets: []domain.Target{{Type: domain.TargetBonusCount, Threshold: 3}},
	},
	{
		ID: "marathon", Name: "Marathon", Icon: "🏃", Class: domain.ClassAchievement, Kind: domain.KindOneTime,
		Targets: []domain.Target{{Type: domain.TargetLongestStreak, Threshold: 30}},
	},
	{
		ID: "big-day", Name: "Big Day", Icon: "💪", Class: domain.ClassAchievement, Kind: domain.KindOneTime,
		Targets: []domain.Target{{Type: domain.TargetDailyMinChores, MinCount: 5}},
	},
}

// SeasonalChallenge builds a challenge running for days from start. Hosts
// use it to schedule challenges without authoring a file.
func SeasonalChallenge(id, name string, start time.Time, days int, targets ...domain.Target) domain.AwardDefinition {
	start = domain.StartOfDay(start)
	return domain.AwardDefinition{
		ID:        id,
		Name:      name,
		Class:     domain.ClassChallenge,
		Kind:      domain.KindOneTime,
		Targets:   targets,
		StartDate: start,
		EndDate:   domain.EndOfDay(start.AddDate(0, 0, days-1)),
	}
}
