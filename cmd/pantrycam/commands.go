package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pageza/pantrycam/config"
	"github.com/pageza/pantrycam/internal/app"
	"github.com/pageza/pantrycam/internal/notify"
)

// cli carries the state shared by every command of one invocation.
type cli struct {
	apiURL   string
	logLevel string
	app      *app.App
	// newApp is replaced in tests.
	newApp func(ctx context.Context, cfg *config.Config) (*app.App, error)
}

func newCLI() *cli {
	return &cli{
		newApp: func(ctx context.Context, cfg *config.Config) (*app.App, error) {
			return app.New(ctx, cfg)
		},
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pantrycam",
		Short: "Turn a photo of your ingredients into recipes",
		Long: `pantrycam uploads a photo of your ingredients, lets you choose which of the
recognized ingredients to cook with and recommends recipes you can save.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.start,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.stop()
		},
	}
	root.PersistentFlags().StringVar(&c.apiURL, "api-url", "", "base URL of the recipe API (overrides PANTRYCAM_API_URL)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		c.loginCmd(),
		c.registerCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.scanCmd(),
		c.recipeCmd(),
		c.savedCmd(),
	)
	return root
}

func (c *cli) start(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if c.apiURL != "" {
		cfg.APIBaseURL = c.apiURL
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	a, err := c.newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	c.app = a

	errOut := cmd.ErrOrStderr()
	a.Notices.Subscribe(func(ev notify.Event) {
		if ev.Type == notify.Shown {
			printNotice(errOut, ev.Notice)
		}
	})
	return nil
}

func (c *cli) stop() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

func printNotice(w io.Writer, n notify.Notice) {
	fmt.Fprintf(w, "[%s] %s\n", n.Severity, n.Message)
}
