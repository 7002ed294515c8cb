package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"bookfinder/services/client/internal/app"
)

var (
	flagEmail    string
	flagPassword string
	flagName     string
)

func init() {
	for _, c := range []*cobra.Command{signInCmd, signUpCmd, forgotCmd} {
		c.Flags().StringVar(&flagEmail, "email", "", "account email")
	}
	for _, c := range []*cobra.Command{signInCmd, signUpCmd} {
		c.Flags().StringVar(&flagPassword, "password", "", "account password (read from stdin when empty)")
	}
	signUpCmd.Flags().StringVar(&flagName, "name", "", "display name")
	rootCmd.AddCommand(signInCmd, signUpCmd, forgotCmd, signOutCmd, whoamiCmd)
}

var signInCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in with email and password",
	RunE: func(cmd *cobra.Command, _ []string) error {
		core, _, err := loadApp(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}
		defer core.Close()
		password, err := passwordFrom(cmd.InOrStdin())
		if err != nil {
			return err
		}
		sess, err := core.SignIn(cmd.Context(), flagEmail, password)
		if err != nil {
			return userError(app.UserMessage(err, "Sign in failed"))
		}
		return printJSON(cmd.OutOrStdout(), sess.User)
	},
}

var signUpCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		core, _, err := loadApp(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}
		defer core.Close()
		password, err := passwordFrom(cmd.InOrStdin())
		if err != nil {
			return err
		}
		res, err := core.SignUp(cmd.Context(), flagName, flagEmail, password)
		if err != nil {
			return userError(app.UserMessage(err, "Sign up failed"))
		}
		if res.ProfileErr != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Account created, but the display name was not saved:", res.ProfileErr.Message)
		}
		return printJSON(cmd.OutOrStdout(), res.Session.User)
	},
}

var forgotCmd = &cobra.Command{
	Use:   "forgot",
	Short: "Send a password reset email",
	RunE: func(cmd *cobra.Command, _ []string) error {
		core, _, err := loadApp(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}
		defer core.Close()
		info, err := core.ForgotPassword(cmd.Context(), flagEmail)
		if err != nil {
			return userError(app.UserMessage(err, "Failed to send reset email"))
		}
		fmt.Fprintln(cmd.OutOrStdout(), info)
		return nil
	},
}

var signOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out and forget the stored credential",
	RunE: func(cmd *cobra.Command, _ []string) error {
		core, _, err := loadApp(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}
		defer core.Close()
		if err := core.SignOut(cmd.Context()); err != nil {
			return userError(app.UserMessage(err, "Sign out failed"))
		}
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the signed-in user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		core, _, err := loadApp(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}
		defer core.Close()
		return printJSON(cmd.OutOrStdout(), core.Session())
	},
}

func passwordFrom(in io.Reader) (string, error) {
	if flagPassword != "" {
		return flagPassword, nil
	}
	if v := os.Getenv("BOOKFINDER_PASSWORD"); v != "" {
		return v, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
