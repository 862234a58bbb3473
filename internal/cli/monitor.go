package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"heimdall/internal/app"
	"heimdall/internal/domain"

	"github.com/spf13/cobra"
)

func newCheckCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check every server once",
		Long: `Run one sweep over the inventory, send due notifications, and print a report.

The command exits non-zero when the alert ledger cannot be written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return checkCommand(cmd.Context(), e, cmd)
		},
	}
}

func checkCommand(ctx context.Context, e *env, cmd *cobra.Command) error {
	rt, err := e.runtime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	if len(rt.Inventory().Servers) == 0 {
		renderHosts(out, rt.Inventory())
		return nil
	}
	summary, err := rt.Sweep(ctx)
	renderSummary(out, summary)
	return err
}

func newWatchCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Check servers continuously",
		Long: `Sweep the inventory every service.check_interval_sec seconds until interrupted.

The Telegram command loop and the status server run alongside when configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := e.runtime(cmd.Context())
			if err != nil {
				return err
			}
			service, err := app.NewService(rt)
			if err != nil {
				_ = rt.Close()
				return err
			}
			return service.Run(cmd.Context())
		},
	}
}

func newBotCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram command loop without sweeping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := e.runtime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.Bot == nil {
				return errors.New("notify.telegram.bot_token is not configured; run: heimdall configure telegram")
			}
			me, err := rt.Telegram.GetMe(ctx)
			if err != nil {
				return fmt.Errorf("telegram connection check: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Listening as @%s, press Ctrl+C to stop\n", okStyle.Render(symbolSuccess), me.Username)
			return rt.Bot.Run(ctx)
		},
	}
}

func newAlertsCommand(e *env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show active and resolved alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := e.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			active, resolved := rt.Ledger.Active(), rt.Ledger.Resolved()
			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(map[string][]domain.AlertRecord{
					"active_alerts":   active,
					"resolved_alerts": resolved,
				})
			}
			renderAlerts(cmd.OutOrStdout(), active, resolved, rt.Clock.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}
