package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"heimdall/internal/config"

	"github.com/spf13/cobra"
)

// hostFlags carries non-interactive values for hosts add and edit.
type hostFlags struct {
	nickname  string
	hostname  string
	port      int
	username  string
	keyPath   string
	password  string
	services  []string
	skipProbe bool
}

func (f *hostFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.nickname, "nickname", "", "server nickname (defaults to the remote hostname)")
	cmd.Flags().StringVar(&f.hostname, "hostname", "", "hostname or IP address; skips the form")
	cmd.Flags().IntVar(&f.port, "port", 0, "SSH port")
	cmd.Flags().StringVar(&f.username, "user", "", "SSH username")
	cmd.Flags().StringVar(&f.keyPath, "key", "", "private key path")
	cmd.Flags().StringVar(&f.password, "password", "", "SSH password")
	cmd.Flags().StringSliceVar(&f.services, "service", nil, "service to monitor (repeatable)")
}

var hostFlagNames = []string{"nickname", "hostname", "port", "user", "key", "password", "service"}

func (f *hostFlags) anyChanged(cmd *cobra.Command) bool {
	for _, name := range hostFlagNames {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

// apply overlays flags that were set on server.
func (f *hostFlags) apply(cmd *cobra.Command, server *config.Server) {
	if cmd.Flags().Changed("nickname") {
		server.Nickname = f.nickname
	}
	if cmd.Flags().Changed("hostname") {
		server.Hostname = f.hostname
	}
	if cmd.Flags().Changed("port") {
		server.Port = f.port
	}
	if cmd.Flags().Changed("user") {
		server.Username = f.username
	}
	if cmd.Flags().Changed("key") {
		server.KeyPath = f.keyPath
	}
	if cmd.Flags().Changed("password") {
		server.Password = f.password
	}
	if cmd.Flags().Changed("service") {
		server.Services = f.services
	}
}

func newHostsCommand(e *env) *cobra.Command {
	hosts := &cobra.Command{
		Use:     "hosts",
		Aliases: []string{"host", "servers"},
		Short:   "Manage the server inventory",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List monitored servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return hostList(cmd.OutOrStdout(), e)
		},
	}

	addFlags := &hostFlags{}
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a server after testing the SSH connection",
		Long: `Add a server to the inventory.

Without --hostname a form asks for the connection details. The SSH connection
is tested first and the remote hostname is proposed as the nickname.

Examples:
  heimdall hosts add
  heimdall hosts add --hostname 10.0.0.5 --user root --service nginx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return hostAdd(cmd, e, addFlags)
		},
	}
	addFlags.bind(add)
	add.Flags().BoolVar(&addFlags.skipProbe, "skip-probe", false, "do not test the SSH connection")

	editFlags := &hostFlags{}
	edit := &cobra.Command{
		Use:   "edit [nickname]",
		Short: "Edit a server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return hostEdit(cmd, e, editFlags, firstArg(args))
		},
	}
	editFlags.bind(edit)

	var yes bool
	remove := &cobra.Command{
		Use:     "remove [nickname]",
		Aliases: []string{"rm"},
		Short:   "Remove a server",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return hostRemove(cmd, e, firstArg(args), yes)
		},
	}
	remove.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	hosts.AddCommand(list, add, edit, remove)
	return hosts
}

func (e *env) loadInventory() (config.Inventory, string, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return config.Inventory{}, "", err
	}
	path := e.inventoryPath(cfg)
	inv, err := config.LoadInventory(path)
	if err != nil {
		return config.Inventory{}, "", err
	}
	return inv, path, nil
}

func hostList(out io.Writer, e *env) error {
	inv, _, err := e.loadInventory()
	if err != nil {
		return err
	}
	renderHosts(out, inv)
	return nil
}

func hostAdd(cmd *cobra.Command, e *env, flags *hostFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	path := e.inventoryPath(cfg)
	inv, err := config.LoadInventory(path)
	if err != nil {
		return err
	}

	server := config.Server{Port: 22}
	interactive := !cmd.Flags().Changed("hostname")
	if interactive {
		if err := e.prompter.Server("Add server", &server); err != nil {
			return cancelAware(out, err)
		}
	}
	flags.apply(cmd, &server)

	detected := ""
	if !flags.skipProbe {
		detected, err = probeServer(ctx, e, out, server, cfg.Sampler)
		if err != nil {
			return err
		}
	}

	if strings.TrimSpace(server.Nickname) == "" {
		suggested := detected
		if suggested == "" {
			suggested = server.Hostname
		}
		server.Nickname = suggested
		if interactive {
			nickname, err := e.prompter.Nickname(suggested)
			if err != nil {
				return cancelAware(out, err)
			}
			server.Nickname = nickname
		}
	}

	next, err := inv.Add(server)
	if err != nil {
		return fmt.Errorf("add server: %w", err)
	}
	if err := config.SaveInventory(path, next); err != nil {
		return fmt.Errorf("save inventory: %w", err)
	}
	fmt.Fprintf(out, "%s Added server '%s' (%s)\n", okStyle.Render(symbolSuccess), server.Nickname, server.Address())
	return nil
}

// probeServer tests SSH and returns the remote hostname.
func probeServer(ctx context.Context, e *env, out io.Writer, server config.Server, cfg config.SamplerConfig) (string, error) {
	fmt.Fprintf(out, "Testing SSH connection to %s...\n", server.Address())
	name, err := e.probe(ctx, server, cfg)
	if err != nil {
		return "", fmt.Errorf("connection test failed for %s: %w", server.Address(), err)
	}
	fmt.Fprintf(out, "%s Connected, remote hostname is %s\n", okStyle.Render(symbolSuccess), name)
	return name, nil
}

func hostEdit(cmd *cobra.Command, e *env, flags *hostFlags, nickname string) error {
	out := cmd.OutOrStdout()
	inv, path, err := e.loadInventory()
	if err != nil {
		return err
	}
	nickname, err = pickServer(e, inv, nickname, "Select server to edit")
	if err != nil {
		return cancelAware(out, err)
	}
	current, _, ok := inv.Find(nickname)
	if !ok {
		return fmt.Errorf("%w: %s", config.ErrServerNotFound, nickname)
	}

	updated := current
	updated.Services = append([]string(nil), current.Services...)
	if !flags.anyChanged(cmd) {
		if err := e.prompter.Server("Edit "+current.Nickname, &updated); err != nil {
			return cancelAware(out, err)
		}
	}
	flags.apply(cmd, &updated)

	next, err := inv.Replace(current.Nickname, updated)
	if err != nil {
		return fmt.Errorf("edit server: %w", err)
	}
	if err := config.SaveInventory(path, next); err != nil {
		return fmt.Errorf("save inventory: %w", err)
	}
	fmt.Fprintf(out, "%s Updated server '%s'\n", okStyle.Render(symbolSuccess), updated.Nickname)
	return nil
}

func hostRemove(cmd *cobra.Command, e *env, nickname string, yes bool) error {
	out := cmd.OutOrStdout()
	inv, path, err := e.loadInventory()
	if err != nil {
		return err
	}
	nickname, err = pickServer(e, inv, nickname, "Select server to remove")
	if err != nil {
		return cancelAware(out, err)
	}
	server, _, ok := inv.Find(nickname)
	if !ok {
		return fmt.Errorf("%w: %s", config.ErrServerNotFound, nickname)
	}
	if !yes {
		confirm, err := e.prompter.Confirm(fmt.Sprintf("Remove server '%s'?", server.Nickname))
		if err != nil {
			return cancelAware(out, err)
		}
		if !confirm {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}
	next, err := inv.Remove(server.Nickname)
	if err != nil {
		return err
	}
	if err := config.SaveInventory(path, next); err != nil {
		return fmt.Errorf("save inventory: %w", err)
	}
	fmt.Fprintf(out, "%s Removed server '%s'\n", okStyle.Render(symbolSuccess), server.Nickname)
	return nil
}

// pickServer returns nickname or asks the operator to choose one.
func pickServer(e *env, inv config.Inventory, nickname, title string) (string, error) {
	if nickname != "" {
		return nickname, nil
	}
	if len(inv.Servers) == 0 {
		return "", errors.New("no servers configured")
	}
	names := make([]string, 0, len(inv.Servers))
	for _, server := range inv.Servers {
		names = append(names, server.Nickname)
	}
	return e.prompter.Select(title, names)
}

// cancelAware turns a form abort into a clean exit.
func cancelAware(out io.Writer, err error) error {
	if errors.Is(err, errCancelled) {
		fmt.Fprintln(out, "Cancelled.")
		return nil
	}
	return err
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
