package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hearthboard/awards/internal/daemon"
	"github.com/hearthboard/awards/internal/domain"
)

// openDaemon loads the configuration and wires a daemon for a one-shot
// command. Logging is quiet unless --verbose is set.
func openDaemon(cmd *cobra.Command) (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !verbose {
		cfg.Logging.Level = "warn"
	}
	return daemon.NewWithConfig(cfg, cmd.ErrOrStderr())
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// percent renders a 0-1 ratio.
func percent(r float64) string {
	return fmt.Sprintf("%.0f%%", r*100)
}

// verdictStatus summarizes a verdict in one word.
func verdictStatus(v domain.Verdict) string {
	switch {
	case v.Kind == domain.KindCumulative && v.Tier > 0:
		s := fmt.Sprintf("tier %d", v.Tier)
		if v.State != "" && v.State != domain.StateActive {
			s += " (" + strings.ToLower(string(v.State)) + ")"
		}
		return s
	case v.Record.Terminal:
		return "closed"
	case v.Earned:
		return "earned"
	}
	return "in progress"
}

func targetSummary(targets []domain.Target) string {
	parts := make([]string, len(targets))
	for i, t := range targets {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
