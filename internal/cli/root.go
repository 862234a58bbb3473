package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"heimdall/internal/app"
	"heimdall/internal/config"
	"heimdall/internal/logging"
	"heimdall/internal/sshclient"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "heimdall.toml"

// HostnameProbe connects to a server and returns its own hostname.
type HostnameProbe func(ctx context.Context, server config.Server, cfg config.SamplerConfig) (string, error)

// env carries flag values and replaceable collaborators for one command tree.
type env struct {
	configPath  string
	serversPath string

	prompter Prompter
	probe    HostnameProbe
	sampler  app.Sampler
	logger   *slog.Logger
}

// NewRootCommand builds the heimdall command tree with real collaborators.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&env{
		prompter: huhPrompter{},
		probe:    sshHostname,
	})
}

func newRootCommand(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "heimdall",
		Short: "Watch remote servers over SSH and alert on trouble",
		Long: `Heimdall polls servers over SSH for CPU, memory, disk, and service health,
compares readings with thresholds, and notifies by email and Telegram.

Examples:
  heimdall check
  heimdall watch --config /etc/heimdall/heimdall.toml
  heimdall hosts add`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", defaultConfigPath, "application config file")
	root.PersistentFlags().StringVarP(&e.serversPath, "servers", "s", "", "server inventory file (overrides service.inventory_file)")

	root.AddCommand(
		newCheckCommand(e),
		newWatchCommand(e),
		newBotCommand(e),
		newAlertsCommand(e),
		newHostsCommand(e),
		newSubscribersCommand(e),
		newTestCommand(e),
		newConfigureCommand(e),
		newInteractiveCommand(e),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	root := NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		printError(os.Stderr, err)
		return 1
	}
	return 0
}

func (e *env) paths() app.Paths {
	return app.Paths{Config: e.configPath, Inventory: e.serversPath}
}

// runtime builds the full wiring for commands that sweep or send.
func (e *env) runtime(ctx context.Context) (*app.Runtime, error) {
	return app.NewRuntime(ctx, e.paths(), app.RuntimeOptions{Logger: e.logger, Sampler: e.sampler})
}

// loadConfig reads the config file; a missing file yields defaults.
func (e *env) loadConfig() (config.Config, error) {
	return app.LoadConfig(e.configPath)
}

func (e *env) inventoryPath(cfg config.Config) string {
	return app.InventoryPathFor(e.paths(), cfg)
}

// loggerFor returns the injected logger or one built from config.
func (e *env) loggerFor(cfg config.Config) (*slog.Logger, func(), error) {
	if e.logger != nil {
		return e.logger, func() {}, nil
	}
	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return logger, closeLog, nil
}

func sshHostname(ctx context.Context, server config.Server, cfg config.SamplerConfig) (string, error) {
	client, err := sshclient.Dial(ctx, sshclient.SettingsFor(server, cfg))
	if err != nil {
		return "", err
	}
	defer client.Close()
	return client.Hostname(ctx)
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", failStyle.Render(symbolFail), err.Error())
}
