package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hearthboard/awards/internal/domain"
	"github.com/hearthboard/awards/internal/infra/catalog"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// ─── Built-in Catalog ───────────────────────────────────────────────────────

func TestDefault_Valid(t *testing.T) {
	c := catalog.Default()
	if c.Len() == 0 {
		t.Fatal("builtin catalog is empty")
	}
	if c.Source() != "builtin" {
		t.Errorf("Source() = %q", c.Source())
	}
	seen := map[domain.AwardKind]bool{}
	for _, def := range c.Awards() {
		if err := catalog.Validate(def); err != nil {
			t.Errorf("%s: %v", def.ID, err)
		}
		seen[def.Kind] = true
	}
	for _, k := range []domain.AwardKind{domain.KindOneTime, domain.KindRecurring, domain.KindCumulative} {
		if !seen[k] {
			t.Errorf("builtin catalog has no %s award", k)
		}
	}
}

func TestLookup(t *testing.T) {
	c := catalog.Default()
	def, ok := c.Lookup("saver")
	if !ok || len(def.Tiers) != 3 {
		t.Fatalf("Lookup(saver) = %+v, %v", def, ok)
	}
	if _, ok := c.Lookup("nonexistent"); ok {
		t.Error("Lookup(nonexistent) should fail")
	}
}

func TestLoad_EmptyPathIsBuiltin(t *testing.T) {
	c, err := catalog.Load("")
	if err != nil || c.Source() != "builtin" {
		t.Fatalf("Load(\"\") = %v, %v", c, err)
	}
}

// ─── File Formats ───────────────────────────────────────────────────────────

const tomlCatalog = `
[[award]]
id = "century"
name = "Century"
class = "badge"
kind = "one_time"

  [[award.targets]]
  type = "points"
  threshold = 100

[[award]]
id = "saver"
class = "badge"
kind = "cumulative"

  [[award.targets]]
  type = "points"

  [[award.tiers]]
  name = "Bronze"
  threshold = 50
  multiplier = 1.05

  [[award.tiers]]
  name = "Silver"
  threshold = 200

  [award.maintenance]
  period = "weekly"

[[award]]
id = "new-year"
class = "challenge"
kind = "one_time"
start_date = 2025-01-01T00:00:00Z
end_date = 2025-01-07T00:00:00Z

  [[award.targets]]
  type = "chores_total"
  threshold = 10
`

func TestLoad_TOML(t *testing.T) {
	c, err := catalog.Load(writeFile(t, "awards.toml", tomlCatalog))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	ids := []string{"century", "saver", "new-year"}
	for i, def := range c.Awards() {
		if def.ID != ids[i] {
			t.Errorf("award %d = %s, want %s (file order)", i, def.ID, ids[i])
		}
	}

	saver, _ := c.Lookup("saver")
	if saver.Maintenance == nil || saver.Maintenance.Period != domain.PeriodWeekly {
		t.Errorf("maintenance = %+v", saver.Maintenance)
	}
	if saver.Name != "saver" {
		t.Errorf("missing name should default to id, got %q", saver.Name)
	}

	challenge, _ := c.Lookup("new-year")
	wantEnd := time.Date(2025, 1, 7, 23, 59, 59, 999999999, time.UTC)
	if !challenge.EndDate.Equal(wantEnd) {
		t.Errorf("EndDate = %v, want end of day %v", challenge.EndDate, wantEnd)
	}
}

const yamlCatalog = `
awards:
  - id: perfect-day
    name: Perfect Day
    class: achievement
    kind: one_time
    targets:
      - type: daily_completion
        percent_required: 80
        require_no_overdue: true
  - id: laundry
    class: achievement
    kind: one_time
    targets:
      - type: chores_of_type
        task_type: laundry
        threshold: 20
        window: weekly
`

func TestLoad_YAML(t *testing.T) {
	c, err := catalog.Load(writeFile(t, "awards.yaml", yamlCatalog))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	def, ok := c.Lookup("perfect-day")
	if !ok {
		t.Fatal("perfect-day missing")
	}
	if tgt := def.Targets[0]; tgt.PercentRequired != 80 || !tgt.RequireNoOverdue {
		t.Errorf("target = %+v", tgt)
	}
	laundry, _ := c.Lookup("laundry")
	if laundry.Targets[0].Window != domain.WindowWeekly {
		t.Errorf("window = %q", laundry.Targets[0].Window)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "awards.toml")
	if err := catalog.Save(path, catalog.Default().Awards()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	c, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if c.Len() != catalog.Default().Len() {
		t.Errorf("Len() = %d, want %d", c.Len(), catalog.Default().Len())
	}
}

// ─── Validation ─────────────────────────────────────────────────────────────

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want error
	}{
		{
			name: "duplicate id",
			file: "dup.yaml",
			body: `
awards:
  - {id: a, class: badge, kind: one_time, targets: [{type: points, threshold: 1}]}
  - {id: a, class: badge, kind: one_time, targets: [{type: points, threshold: 2}]}
`,
			want: domain.ErrDuplicateAward,
		},
		{
			name: "unknown target type",
			file: "unknown.yaml",
			body: `
awards:
  - {id: a, class: badge, kind: one_time, targets: [{type: vibes, threshold: 1}]}
`,
			want: domain.ErrUnknownTargetType,
		},
		{
			name: "descending tiers",
			file: "tiers.yaml",
			body: `
awards:
  - id: a
    class: badge
    kind: cumulative
    targets: [{type: points}]
    tiers: [{name: hi, threshold: 200}, {name: lo, threshold: 50}]
    maintenance: {period: weekly}
`,
			want: domain.ErrMalformedTiers,
		},
		{
			name: "challenge without dates",
			file: "challenge.yaml",
			body: `
awards:
  - {id: a, class: challenge, kind: one_time, targets: [{type: chores_total, threshold: 1}]}
`,
			want: domain.ErrMalformedTarget,
		},
		{
			name: "challenge on bonus count",
			file: "bonus.yaml",
			body: `
awards:
  - id: a
    class: challenge
    kind: one_time
    start_date: 2025-01-01T00:00:00Z
    end_date: 2025-01-07T00:00:00Z
    targets: [{type: bonus_count, threshold: 3}]
`,
			want: domain.ErrMalformedTarget,
		},
		{
			name: "tiered with two targets",
			file: "gated.yaml",
			body: `
awards:
  - id: a
    class: badge
    kind: cumulative
    targets: [{type: points}, {type: chores_total, threshold: 100}]
    tiers: [{name: lo, threshold: 50}, {name: hi, threshold: 200}]
    maintenance: {period: weekly}
`,
			want: domain.ErrMalformedTiers,
		},
		{
			name: "unknown toml key",
			file: "typo.toml",
			body: `
[[award]]
id = "a"
class = "badge"
kind = "one_time"
treshold = 5
`,
			want: domain.ErrMalformedTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Load(writeFile(t, tt.file, tt.body))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	if _, err := catalog.Load(writeFile(t, "awards.json", "{}")); err == nil {
		t.Error("expected unsupported format error")
	}
}

func TestSeasonalChallenge(t *testing.T) {
	def := catalog.SeasonalChallenge("spring", "Spring Clean",
		time.Date(2025, 4, 1, 15, 0, 0, 0, time.UTC), 7,
		domain.Target{Type: domain.TargetChoresTotal, Threshold: 20})
	if err := catalog.Validate(def); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if !def.WithinWindow(time.Date(2025, 4, 7, 23, 0, 0, 0, time.UTC)) {
		t.Error("last day should be inside the window")
	}
	if def.WithinWindow(time.Date(2025, 4, 8, 0, 0, 0, 0, time.UTC)) {
		t.Error("day after should be outside the window")
	}
}
