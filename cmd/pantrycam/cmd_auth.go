package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pageza/pantrycam/internal/auth"
	"github.com/pageza/pantrycam/internal/gateway"
	"github.com/pageza/pantrycam/internal/types"
)

func (c *cli) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := c.app.Auth.Login(cmd.Context(), types.LoginRequest{
				Email:    email,
				Password: passwordOrEnv(password),
			})
			if err != nil {
				return fmt.Errorf("login failed: %s", gateway.Message(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (defaults to PANTRYCAM_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) registerCmd() *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := c.app.Auth.Register(cmd.Context(), types.RegisterRequest{
				Email:    email,
				Password: passwordOrEnv(password),
				Name:     name,
			})
			if err != nil {
				return fmt.Errorf("registration failed: %s", gateway.Message(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s! You are logged in.\n", user.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (defaults to PANTRYCAM_PASSWORD)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, ok := c.app.Auth.User()
			if !ok {
				return auth.ErrNotLoggedIn
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", user.Name, user.Email)
			return nil
		},
	}
}

// requireLogin fails early instead of letting the server answer 401.
func (c *cli) requireLogin() error {
	if !c.app.Auth.IsAuthenticated() {
		return errors.New("not logged in, run `pantrycam login` first")
	}
	return nil
}

func passwordOrEnv(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv("PANTRYCAM_PASSWORD")
}
