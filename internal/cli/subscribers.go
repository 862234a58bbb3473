package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"heimdall/internal/chatbot"
	"heimdall/internal/domain"

	"github.com/spf13/cobra"
)

// operator is the registry plus the optional bot used for notices.
type operator struct {
	registry *chatbot.Registry
	bot      *chatbot.Bot
	close    func()
}

func (e *env) operator() (*operator, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := e.loggerFor(cfg)
	if err != nil {
		return nil, err
	}
	tg := cfg.Notify.Telegram
	op := &operator{
		registry: chatbot.NewRegistry(tg.Subscribers, chatbot.ConfigPersister(e.configPath), tg.AutoApprove, nil),
		close:    closeLog,
	}
	if strings.TrimSpace(tg.BotToken) != "" {
		api, err := chatbot.NewTelegramAPI(tg)
		if err != nil {
			closeLog()
			return nil, err
		}
		op.bot = chatbot.NewBot(op.registry, api, api, chatbot.OptionsFrom(tg), logger)
	}
	return op, nil
}

func (op *operator) approve(ctx context.Context, chatID int64) (domain.Subscriber, error) {
	if op.bot != nil {
		return op.bot.Approve(ctx, chatID)
	}
	return op.registry.Approve(chatID)
}

func (op *operator) disapprove(ctx context.Context, chatID int64) (domain.Subscriber, error) {
	if op.bot != nil {
		return op.bot.Disapprove(ctx, chatID)
	}
	return op.registry.Disapprove(chatID)
}

func (op *operator) remove(ctx context.Context, chatID int64) (domain.Subscriber, error) {
	if op.bot != nil {
		return op.bot.Remove(ctx, chatID)
	}
	return op.registry.Remove(chatID)
}

func newSubscribersCommand(e *env) *cobra.Command {
	subscribers := &cobra.Command{
		Use:     "subscribers",
		Aliases: []string{"subs"},
		Short:   "Manage Telegram subscribers",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List subscribers and their approval state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			op, err := e.operator()
			if err != nil {
				return err
			}
			defer op.close()
			renderSubscribers(cmd.OutOrStdout(), op.registry.List())
			return nil
		},
	}

	subscribers.AddCommand(
		list,
		subscriberCommand(e, "approve", "Approve a subscriber for alerts", "Approved", (*operator).approve),
		subscriberCommand(e, "disapprove", "Stop alerts to a subscriber without removing it", "Disapproved", (*operator).disapprove),
		subscriberCommand(e, "remove", "Remove a subscriber", "Removed", (*operator).remove),
	)
	return subscribers
}

func subscriberCommand(e *env, use, short, verb string, action func(*operator, context.Context, int64) (domain.Subscriber, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <chat-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chat id %q", args[0])
			}
			op, err := e.operator()
			if err != nil {
				return err
			}
			defer op.close()

			sub, err := action(op, cmd.Context(), chatID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s (%d)\n", okStyle.Render(symbolSuccess), verb, sub.DisplayName(), sub.ChatID)
			return nil
		},
	}
}
