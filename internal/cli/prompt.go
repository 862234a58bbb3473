package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"heimdall/internal/config"

	"github.com/charmbracelet/huh"
)

// errCancelled marks an operator abort inside a form.
var errCancelled = errors.New("cancelled")

// Prompter collects operator input for interactive commands.
type Prompter interface {
	Server(title string, server *config.Server) error
	Nickname(suggested string) (string, error)
	Select(title string, options []string) (string, error)
	Confirm(title string) (bool, error)
	SMTP(email *config.EmailNotifier) error
	Telegram(telegram *config.TelegramNotifier) error
}

// huhPrompter renders Prompter forms in the terminal.
type huhPrompter struct{}

func runForm(form *huh.Form) error {
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errCancelled
		}
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func (huhPrompter) Server(title string, server *config.Server) error {
	port := strconv.Itoa(server.Port)
	if server.Port == 0 {
		port = "22"
	}
	services := strings.Join(server.Services, ", ")
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Hostname or IP address").Value(&server.Hostname).Validate(required("hostname")),
			huh.NewInput().Title("SSH port").Value(&port).Validate(validPort),
			huh.NewInput().Title("SSH username").Value(&server.Username).Validate(required("username")),
			huh.NewInput().Title("Private key path").Description("Leave empty to use the agent defaults or a password").Value(&server.KeyPath),
			huh.NewInput().Title("Password").Description("Used when no key is accepted").EchoMode(huh.EchoModePassword).Value(&server.Password),
			huh.NewInput().Title("Services to monitor").Description("Comma separated, e.g. nginx, postgresql").Value(&services),
		).Title(title),
	)
	if err := runForm(form); err != nil {
		return err
	}
	server.Port, _ = strconv.Atoi(strings.TrimSpace(port))
	server.Services = splitList(services)
	return nil
}

func (huhPrompter) Nickname(suggested string) (string, error) {
	nickname := suggested
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Nickname").
				Description("Detected from the remote hostname; press enter to keep it").
				Value(&nickname).
				Validate(required("nickname")),
		),
	)
	if err := runForm(form); err != nil {
		return "", err
	}
	return strings.TrimSpace(nickname), nil
}

func (huhPrompter) Select(title string, options []string) (string, error) {
	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().Title(title).Options(huh.NewOptions(options...)...).Value(&choice),
		),
	)
	if err := runForm(form); err != nil {
		return "", err
	}
	return choice, nil
}

func (huhPrompter) Confirm(title string) (bool, error) {
	var confirm bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().Title(title).Description("This cannot be undone").Value(&confirm),
		),
	)
	if err := runForm(form); err != nil {
		return false, err
	}
	return confirm, nil
}

func (huhPrompter) SMTP(email *config.EmailNotifier) error {
	port := strconv.Itoa(email.SMTPPort)
	recipients := strings.Join(email.Recipients, ", ")
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("SMTP server").Value(&email.SMTPServer).Validate(required("smtp server")),
			huh.NewInput().Title("SMTP port").Value(&port).Validate(validPort),
			huh.NewConfirm().Title("Use TLS (STARTTLS)?").Value(&email.UseTLS),
			huh.NewInput().Title("Username").Value(&email.Username),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&email.Password),
			huh.NewInput().Title("Sender address").Value(&email.Sender).Validate(required("sender")),
			huh.NewInput().Title("Recipients").Description("Comma separated").Value(&recipients).Validate(required("recipients")),
		).Title("Email notifications"),
	)
	if err := runForm(form); err != nil {
		return err
	}
	email.SMTPPort, _ = strconv.Atoi(strings.TrimSpace(port))
	email.Recipients = splitList(recipients)
	return nil
}

func (huhPrompter) Telegram(telegram *config.TelegramNotifier) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Bot token").Description("From @BotFather").EchoMode(huh.EchoModePassword).Value(&telegram.BotToken).Validate(required("bot token")),
			huh.NewConfirm().Title("Approve new subscribers automatically?").Value(&telegram.AutoApprove),
		).Title("Telegram notifications"),
	)
	return runForm(form)
}

func required(field string) func(string) error {
	return func(value string) error {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validPort(value string) error {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || port < 1 || port > 65535 {
		return errors.New("port must be a number between 1 and 65535")
	}
	return nil
}

// splitList parses a comma or space separated list.
func splitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}
