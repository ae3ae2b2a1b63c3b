package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hearthboard/awards/internal/domain"
	"github.com/hearthboard/awards/internal/infra/sqlite"
)

func init() {
	actorsCmd.AddCommand(actorsImportCmd, actorsRmCmd, actorsProgressCmd, actorsResetCmd, actorsPruneCmd)
	rootCmd.AddCommand(actorsCmd)
}

var actorsCmd = &cobra.Command{
	Use:     "actors",
	Aliases: []string{"ps"},
	Short:   "List actors with stored statistics",
	RunE:    runActors,
}

var actorsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Load actor statistics and daily activity from YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runActorsImport,
}

var actorsRmCmd = &cobra.Command{
	Use:   "rm <actor>",
	Short: "Delete an actor with its statistics and award progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.DB.DeleteActor(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

var actorsResetCmd = &cobra.Command{
	Use:   "reset <actor> <award>",
	Short: "Clear one award's stored progress so it is evaluated from scratch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.DB.DeleteProgress(context.Background(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reset %s for %s\n", args[1], args[0])
		return nil
	},
}

var actorsProgressCmd = &cobra.Command{
	Use:   "progress <actor>",
	Short: "Show stored award progress for an actor",
	Args:  cobra.ExactArgs(1),
	RunE:  runActorsProgress,
}

var actorsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete progress for awards no longer in the catalog",
	RunE:  runActorsPrune,
}

func runActors(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	ids, err := d.DB.ListActors(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No actors yet. Run 'awardd actors import <file.yaml>' to seed some.")
		return nil
	}

	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "ACTOR\tAWARDS\tPENDING NOTIFICATIONS\tMULTIPLIER")
	for _, id := range ids {
		records, err := d.DB.ListProgress(ctx, id)
		if err != nil {
			return err
		}
		earned := 0
		for _, rec := range records {
			if rec.Earned || rec.Tier > 0 {
				earned++
			}
		}
		pending, err := d.DB.ListNotifications(ctx, id, true)
		if err != nil {
			return err
		}
		mult, err := d.DB.EffectiveMultiplier(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\n", id, earned, len(pending), mult)
	}
	return w.Flush()
}

func runActorsProgress(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	records, err := d.DB.ListProgress(context.Background(), args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No stored progress for %s.\n", args[0])
		return nil
	}

	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "AWARD\tEARNED\tTIER\tSTATE\tPROGRESS\tEARNED AT")
	for _, rec := range records {
		earnedAt := "-"
		if !rec.EarnedAt.IsZero() {
			earnedAt = rec.EarnedAt.Format("2006-01-02 15:04")
		}
		state := string(rec.State)
		if state == "" {
			state = "-"
		}
		fmt.Fprintf(w, "%s\t%v\t%d\t%s\t%s\t%s\n",
			rec.AwardID, rec.Earned, rec.Tier, state, percent(rec.Progress), earnedAt)
	}
	return w.Flush()
}

func runActorsPrune(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	ids, err := d.DB.ProgressAwardIDs(ctx)
	if err != nil {
		return err
	}
	var total int64
	for _, id := range ids {
		if _, ok := d.Catalog.Lookup(id); ok {
			continue
		}
		n, err := d.DB.DeleteAwardProgress(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s (%d records)\n", id, n)
		total += n
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d orphaned records removed\n", total)
	return nil
}

// ─── Seed Files ─────────────────────────────────────────────────────────────

type seedFile struct {
	Actors []seedActor `yaml:"actors"`
}

type seedActor struct {
	sqlite.ActorStats `yaml:",inline"`
	Chores            map[string]seedCount `yaml:"chores"`
	Days              []seedDay            `yaml:"days"`
}

type seedCount struct {
	Cycle   int `yaml:"cycle"`
	AllTime int `yaml:"all_time"`
}

type seedDay struct {
	Date         string         `yaml:"date"` // YYYY-MM-DD
	Applicable   int            `yaml:"applicable"`
	DueToday     int            `yaml:"due_today"`
	Completed    int            `yaml:"completed"`
	CompletedDue int            `yaml:"completed_due"`
	Overdue      int            `yaml:"overdue"`
	Points       float64        `yaml:"points"`
	TaskPoints   float64        `yaml:"task_points"`
	ByType       map[string]int `yaml:"by_type"`
}

func parseSeed(data []byte) (seedFile, error) {
	var f seedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return f, fmt.Errorf("parse seed file: %w", err)
	}
	return f, nil
}

func (a seedActor) dayActivity() ([]domain.DayActivity, error) {
	out := make([]domain.DayActivity, 0, len(a.Days))
	for _, sd := range a.Days {
		date, err := time.Parse("2006-01-02", sd.Date)
		if err != nil {
			return nil, fmt.Errorf("actor %s day %q: %w", a.ID, sd.Date, err)
		}
		out = append(out, domain.DayActivity{
			Date:         date,
			Applicable:   sd.Applicable,
			DueToday:     sd.DueToday,
			Completed:    sd.Completed,
			CompletedDue: sd.CompletedDue,
			Overdue:      sd.Overdue,
			Points:       sd.Points,
			TaskPoints:   sd.TaskPoints,
			ByType:       sd.ByType,
		})
	}
	return out, nil
}

func runActorsImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	seed, err := parseSeed(data)
	if err != nil {
		return err
	}

	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	for _, a := range seed.Actors {
		days, err := a.dayActivity()
		if err != nil {
			return err
		}
		if err := d.DB.UpsertActor(ctx, a.ActorStats); err != nil {
			return err
		}
		for typ, c := range a.Chores {
			if err := d.DB.SetChoreCount(ctx, a.ID, typ, c.Cycle, c.AllTime); err != nil {
				return err
			}
		}
		for _, day := range days {
			if err := d.DB.UpsertDay(ctx, a.ID, day); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%d days)\n", a.ID, len(days))
	}
	return nil
}
