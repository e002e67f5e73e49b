package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pageza/pantrycam/internal/savedview"
	"github.com/pageza/pantrycam/internal/types"
)

func (c *cli) savedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saved",
		Short: "Manage saved recipes",
	}
	cmd.AddCommand(c.savedListCmd(), c.savedRemoveCmd(), c.savedToggleCmd())
	return cmd
}

func (c *cli) savedListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved recipes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireLogin(); err != nil {
				return err
			}
			v := c.app.NewSavedView()
			defer v.Close()

			state, err := v.Load(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(state.Recipes) == 0 {
				fmt.Fprintln(out, savedview.EmptyMessage)
				return nil
			}
			if state.Stale {
				fmt.Fprintln(out, state.CountText(), "(refreshing)")
			} else {
				fmt.Fprintln(out, state.CountText())
			}
			for _, r := range state.Recipes {
				fmt.Fprintf(out, "  %s  %s\n", r.ID, summary(r))
			}
			return nil
		},
	}
}

func (c *cli) savedRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a saved recipe",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireLogin(); err != nil {
				return err
			}
			v := c.app.NewSavedView()
			defer v.Close()
			return v.Remove(cmd.Context(), args[0])
		},
	}
}

func (c *cli) savedToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Save a recipe by id, or remove it when it is already saved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireLogin(); err != nil {
				return err
			}
			ctx := cmd.Context()
			v := c.app.NewSavedView()
			defer v.Close()

			state, err := v.Load(ctx)
			if err != nil {
				return err
			}
			recipe, ok := findRecipe(state.Recipes, args[0])
			if !ok {
				found, err := c.app.API.GetRecipe(ctx, args[0])
				if err != nil {
					return err
				}
				recipe = *found
			}
			nowSaved, err := v.ToggleSaved(ctx, recipe)
			if err != nil {
				return err
			}
			if nowSaved {
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", summary(recipe))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", summary(recipe))
			}
			return nil
		},
	}
}

func findRecipe(recipes []types.Recipe, id string) (types.Recipe, bool) {
	for _, r := range recipes {
		if r.ID == id {
			return r, true
		}
	}
	return types.Recipe{}, false
}

func (c *cli) recipeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recipe <id>",
		Short: "Print a recipe in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireLogin(); err != nil {
				return err
			}
			p := c.app.NewPipeline()
			defer p.Close()

			recipe, err := p.OpenDetailByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRecipe(cmd.OutOrStdout(), *recipe)
			return nil
		},
	}
}
