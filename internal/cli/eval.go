package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	evalCmd.Flags().BoolVar(&evalAll, "all", false, "Evaluate every known actor")
	evalCmd.Flags().BoolVar(&evalApply, "apply", false, "Persist progress and emit notifications")
	rootCmd.AddCommand(evalCmd)
}

var (
	evalAll   bool
	evalApply bool
)

var evalCmd = &cobra.Command{
	Use:   "eval [actor...]",
	Short: "Evaluate awards for actors",
	Long: `Evaluate the award catalog for the named actors. Without --apply this is
a dry run that prints verdicts and changes nothing.`,
	RunE: runEval,
}

func runEval(cmd *cobra.Command, args []string) error {
	if !evalAll && len(args) == 0 {
		return fmt.Errorf("name at least one actor or pass --all")
	}

	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	actors := args
	if evalAll {
		if actors, err = d.DB.ListActors(ctx); err != nil {
			return err
		}
	}
	out := cmd.OutOrStdout()

	if evalApply {
		for _, id := range actors {
			if err := d.Manager.MarkDirty(id); err != nil {
				return err
			}
		}
		res, err := d.Manager.Flush(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Evaluated %d actors: %d applied, %d snapshot failures, %d apply failures, %d notifications, %d skipped awards\n",
			res.Actors, res.Applied, res.SnapshotFailed, res.ApplyFailed, res.Notifications, res.Skipped)
		if res.SnapshotFailed > 0 || res.ApplyFailed > 0 {
			return fmt.Errorf("%d actors failed", res.SnapshotFailed+res.ApplyFailed)
		}
		return nil
	}

	for _, id := range actors {
		report, err := d.Manager.DryRun(ctx, id)
		if err != nil {
			return fmt.Errorf("actor %s: %w", id, err)
		}
		fmt.Fprintf(out, "Actor %s\n", id)
		w := newTable(out)
		fmt.Fprintln(w, "AWARD\tCLASS\tSTATUS\tPROGRESS\tNOTIFY")
		for _, v := range report.Verdicts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				v.AwardID, v.Class, verdictStatus(v), percent(v.ProgressRatio), v.NotifyReason)
		}
		for _, sk := range report.Skipped {
			fmt.Fprintf(w, "%s\t-\tskipped\t-\t%s\n", sk.AwardID, sk.Reason())
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}
