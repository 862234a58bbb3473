package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

const (
	menuList   = "List servers"
	menuAdd    = "Add server"
	menuEdit   = "Edit server"
	menuRemove = "Remove server"
	menuCheck  = "Check all servers now"
	menuExit   = "Exit"
)

var menuOptions = []string{menuList, menuAdd, menuEdit, menuRemove, menuCheck, menuExit}

func newInteractiveCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"menu"},
		Short:   "Manage servers from a menu",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return interactiveLoop(cmd, e)
		},
	}
}

// interactiveLoop repeats the menu until Exit; action errors are printed, not fatal.
func interactiveLoop(cmd *cobra.Command, e *env) error {
	out := cmd.OutOrStdout()
	for {
		choice, err := e.prompter.Select("Heimdall", menuOptions)
		if errors.Is(err, errCancelled) || choice == menuExit {
			return nil
		}
		if err != nil {
			return err
		}

		switch choice {
		case menuList:
			err = hostList(out, e)
		case menuAdd:
			err = hostAdd(cmd, e, &hostFlags{})
		case menuEdit:
			err = hostEdit(cmd, e, &hostFlags{}, "")
		case menuRemove:
			err = hostRemove(cmd, e, "", false)
		case menuCheck:
			err = checkCommand(cmd.Context(), e, cmd)
		}
		if err != nil {
			printError(out, err)
		}
		fmt.Fprintln(out)
	}
}
