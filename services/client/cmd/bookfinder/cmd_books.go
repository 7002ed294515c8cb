package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"bookfinder/services/client/internal/app"
	"bookfinder/services/client/internal/gate"
)

func init() {
	rootCmd.AddCommand(searchCmd, bookCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the catalog",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		core, _, err := loadApp(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}
		defer core.Close()
		if err := requireSignIn(core); err != nil {
			return err
		}
		page, err := core.SearchBooks(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return userError(app.UserMessage(err, app.MessageSearchFailed))
		}
		return printJSON(cmd.OutOrStdout(), page)
	},
}

var bookCmd = &cobra.Command{
	Use:   "book <id>",
	Short: "Show one catalog item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		core, _, err := loadApp(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}
		defer core.Close()
		if err := requireSignIn(core); err != nil {
			return err
		}
		book, err := core.Book(cmd.Context(), args[0])
		if err != nil {
			return userError(app.UserMessage(err, app.MessageBookFailed))
		}
		if book.ID == "" {
			return userError(app.NoticeNoDetails)
		}
		return printJSON(cmd.OutOrStdout(), book)
	},
}

func requireSignIn(core *app.App) error {
	if core.Gate().Decision() != gate.Admitted {
		return userError("Not signed in. Run `bookfinder signin` first.")
	}
	return nil
}

type userError string

func (e userError) Error() string { return string(e) }
