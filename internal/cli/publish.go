package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hearthboard/awards/internal/daemon"
	"github.com/hearthboard/awards/internal/domain"
	"github.com/hearthboard/awards/internal/infra/events"
)

func init() {
	rootCmd.AddCommand(publishCmd)
}

var publishCmd = &cobra.Command{
	Use:   "publish <actor> <kind>",
	Short: "Publish a change event to the configured Redis stream",
	Long: `Publish a change event (balance_changed, task_approved, reward_approved,
reward_claimed, bonus_applied, penalty_applied, badge_awarded) for a running
daemon to pick up. Requires events.redis_url.`,
	Args: cobra.ExactArgs(2),
	RunE: runPublish,
}

func runPublish(cmd *cobra.Command, args []string) error {
	ev := domain.ChangeEvent{ActorID: args[0], Kind: domain.ChangeKind(args[1])}
	if !ev.Kind.Relevant() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownChangeKind, args[1])
	}

	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.Events.RedisURL == "" {
		return fmt.Errorf("events.redis_url is not configured")
	}
	client, err := events.ConnectRedis(cfg.Events.RedisURL)
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := events.Publish(context.Background(), client, cfg.Events.Stream, ev)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published %s for %s (%s)\n", ev.Kind, ev.ActorID, id)
	return nil
}
