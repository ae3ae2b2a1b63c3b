package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthboard/awards/internal/daemon"
	"github.com/hearthboard/awards/internal/domain"
	"github.com/hearthboard/awards/internal/infra/catalog"
)

func init() {
	awardsChallengeCmd.Flags().StringVar(&challengeID, "id", "", "Challenge id (required)")
	awardsChallengeCmd.Flags().StringVar(&challengeName, "name", "", "Display name (defaults to the id)")
	awardsChallengeCmd.Flags().StringVar(&challengeStart, "start", "", "First day, YYYY-MM-DD (default today)")
	awardsChallengeCmd.Flags().IntVar(&challengeDays, "days", 7, "Length in days")
	awardsChallengeCmd.Flags().StringArrayVar(&challengeTargets, "target", nil, "Target as type=threshold, repeatable")
	_ = awardsChallengeCmd.MarkFlagRequired("id")
	_ = awardsChallengeCmd.MarkFlagRequired("target")

	awardsCmd.AddCommand(awardsCheckCmd, awardsExportCmd, awardsChallengeCmd)
	rootCmd.AddCommand(awardsCmd)
}

var (
	challengeID      string
	challengeName    string
	challengeStart   string
	challengeDays    int
	challengeTargets []string
)

var awardsCmd = &cobra.Command{
	Use:   "awards",
	Short: "List the configured award catalog",
	RunE:  runAwards,
}

var awardsCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a catalog file (.toml, .yaml or .yml)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := catalog.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d awards OK\n", args[0], c.Len())
		return nil
	},
}

var awardsExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the built-in catalog as TOML for editing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := catalog.Save(args[0], catalog.Default().Awards()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
		return nil
	},
}

var awardsChallengeCmd = &cobra.Command{
	Use:   "challenge <file.toml>",
	Short: "Add a time-boxed challenge to a catalog file",
	Long: `Add a challenge running --days days from --start to a TOML catalog.
A missing file starts from the built-in catalog.

  awardd awards challenge awards.toml --id spring --days 14 --target chores_total=40`,
	Args: cobra.ExactArgs(1),
	RunE: runAwardsChallenge,
}

func runAwardsChallenge(cmd *cobra.Command, args []string) error {
	path := args[0]
	if challengeDays < 1 {
		return fmt.Errorf("--days must be at least 1")
	}
	start := time.Now()
	if challengeStart != "" {
		var err error
		if start, err = time.ParseInLocation("2006-01-02", challengeStart, time.Local); err != nil {
			return fmt.Errorf("--start: %w", err)
		}
	}
	targets := make([]domain.Target, 0, len(challengeTargets))
	for _, raw := range challengeTargets {
		t, err := parseTarget(raw)
		if err != nil {
			return err
		}
		targets = append(targets, t)
	}

	var defs []domain.AwardDefinition
	existing, err := catalog.Load(path)
	switch {
	case err == nil:
		defs = append(defs, existing.Awards()...)
	case errors.Is(err, fs.ErrNotExist):
		defs = append(defs, catalog.Default().Awards()...)
	default:
		return err
	}

	name := challengeName
	if name == "" {
		name = challengeID
	}
	def := catalog.SeasonalChallenge(challengeID, name, start, challengeDays, targets...)
	defs = append(defs, def)
	if _, err := catalog.New(path, defs); err != nil {
		return err
	}
	if err := catalog.Save(path, defs); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s: %s to %s, %s\n", def.ID, path,
		def.StartDate.Format("2006-01-02"), def.EndDate.Format("2006-01-02"), targetSummary(def.Targets))
	return nil
}

// parseTarget reads "type=threshold", with "type:task=threshold" for
// chores_of_type.
func parseTarget(raw string) (domain.Target, error) {
	typ, value, ok := strings.Cut(raw, "=")
	if !ok {
		return domain.Target{}, fmt.Errorf("target %q: want type=threshold", raw)
	}
	threshold, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return domain.Target{}, fmt.Errorf("target %q: %w", raw, err)
	}
	t := domain.Target{Threshold: threshold}
	typ, task, _ := strings.Cut(strings.TrimSpace(typ), ":")
	t.Type, t.TaskType = domain.TargetType(typ), task
	return t, nil
}

func runAwards(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	c, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}

	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tNAME\tCLASS\tKIND\tTARGETS")
	for _, def := range c.Awards() {
		name := def.Name
		if def.Icon != "" {
			name = def.Icon + " " + name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", def.ID, name, def.Class, def.Kind, targetSummary(def.Targets))
	}
	return w.Flush()
}
