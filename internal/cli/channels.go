package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"heimdall/internal/app"
	"heimdall/internal/config"
	"heimdall/internal/domain"
	"heimdall/internal/notify"

	"github.com/spf13/cobra"
)

func newTestCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:       "test [email|telegram]",
		Short:     "Send a test notification",
		Long:      "Send the test notification to one channel, or to every enabled channel when none is named.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{config.ChannelEmail, config.ChannelTelegram},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := e.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			return sendTest(cmd.Context(), cmd.OutOrStdout(), rt, firstArg(args))
		},
	}
}

// sendTest delivers the test notification and reports per-channel outcome.
func sendTest(ctx context.Context, out io.Writer, rt *app.Runtime, channel string) error {
	if channel == "" {
		result := rt.Manager.SendTest(ctx)
		renderDelivery(out, result)
		return result.Err()
	}

	if channel == config.ChannelTelegram {
		if rt.Telegram == nil {
			return errors.New("notify.telegram.bot_token is not configured; run: heimdall configure telegram")
		}
		me, err := rt.Telegram.GetMe(ctx)
		if err != nil {
			return fmt.Errorf("telegram connection check: %w", err)
		}
		fmt.Fprintf(out, "%s Connected to Telegram as @%s\n", okStyle.Render(symbolSuccess), me.Username)
		if len(rt.Registry.ApprovedChatIDs()) == 0 {
			fmt.Fprintln(out, warnStyle.Render("No approved subscribers; send /start to the bot and approve the chat first."))
			return nil
		}
	}

	_, err := rt.Dispatcher().Send(ctx, channel, domain.Notification{
		Kind:      domain.NotificationTest,
		Cooldown:  rt.Ledger.Cooldown(),
		Timestamp: rt.Clock.Now(),
	})
	renderDelivery(out, notify.DeliveryResult{Outcomes: map[string]error{channel: err}})
	return err
}

func newConfigureCommand(e *env) *cobra.Command {
	var withTest bool
	configure := &cobra.Command{
		Use:   "configure",
		Short: "Configure notification channels",
	}
	configure.PersistentFlags().BoolVar(&withTest, "test", false, "send a test notification after saving")

	smtp := &cobra.Command{
		Use:   "smtp",
		Short: "Configure email notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			email := cfg.Notify.Email
			if err := e.prompter.SMTP(&email); err != nil {
				return cancelAware(cmd.OutOrStdout(), err)
			}
			email.Enabled = true
			cfg.Notify.Email = email
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveEmail(e.configPath, email); err != nil {
				return fmt.Errorf("save email settings: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Email settings saved to %s\n", okStyle.Render(symbolSuccess), e.configPath)
			return e.maybeTest(cmd, withTest, config.ChannelEmail)
		},
	}

	telegram := &cobra.Command{
		Use:   "telegram",
		Short: "Configure the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			tg := cfg.Notify.Telegram
			if err := e.prompter.Telegram(&tg); err != nil {
				return cancelAware(cmd.OutOrStdout(), err)
			}
			tg.Enabled = true
			cfg.Notify.Telegram = tg
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveTelegram(e.configPath, tg); err != nil {
				return fmt.Errorf("save telegram settings: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Telegram settings saved to %s\n", okStyle.Render(symbolSuccess), e.configPath)
			return e.maybeTest(cmd, withTest, config.ChannelTelegram)
		},
	}

	configure.AddCommand(smtp, telegram)
	return configure
}

func (e *env) maybeTest(cmd *cobra.Command, enabled bool, channel string) error {
	if !enabled {
		return nil
	}
	rt, err := e.runtime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()
	return sendTest(cmd.Context(), cmd.OutOrStdout(), rt, channel)
}
