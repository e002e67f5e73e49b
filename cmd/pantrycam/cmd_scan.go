package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/pageza/pantrycam/internal/pipeline"
	"github.com/pageza/pantrycam/internal/types"
)

type scanOptions struct {
	deselect []string
	save     []int
	toggle   []int
	show     int
}

func (c *cli) scanCmd() *cobra.Command {
	var opts scanOptions
	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Recognize the ingredients in a photo and recommend recipes",
		Example: `  pantrycam scan fridge.jpg
  pantrycam scan fridge.jpg --deselect milk --save 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireLogin(); err != nil {
				return err
			}
			return c.runScan(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.deselect, "deselect", nil, "recognized ingredients to leave out")
	cmd.Flags().IntSliceVar(&opts.save, "save", nil, "numbers of recommended recipes to save")
	cmd.Flags().IntSliceVar(&opts.toggle, "toggle", nil, "numbers of recommended recipes to save, or unsave when already saved")
	cmd.Flags().IntVar(&opts.show, "show", 0, "number of a recommended recipe to print in full")
	return cmd
}

func (c *cli) runScan(ctx context.Context, out io.Writer, path string, opts scanOptions) error {
	img, err := readImage(path)
	if err != nil {
		return err
	}

	p := c.app.NewPipeline()
	defer p.Close()

	if err := p.Upload(ctx, img); err != nil {
		return err
	}
	if err := p.Recognize(ctx); err != nil {
		return err
	}

	for _, name := range opts.deselect {
		if _, err := p.Toggle(strings.ToLower(strings.TrimSpace(name))); err != nil {
			return fmt.Errorf("cannot deselect %q: %w", name, err)
		}
	}

	snap := p.Snapshot()
	if len(snap.Recognized) == 0 {
		return nil
	}
	printIngredients(out, snap)

	if err := p.Recommend(ctx); err != nil {
		if errors.Is(err, pipeline.ErrEmptySelection) {
			return errors.New("select at least one ingredient")
		}
		return err
	}
	snap = p.Snapshot()
	if len(snap.Recommended) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	printRecipeList(out, snap.Recommended, p.IsSaved)

	for _, n := range opts.save {
		recipe, err := pick(snap.Recommended, n)
		if err != nil {
			return err
		}
		if _, err := p.Save(ctx, recipe); err != nil {
			return err
		}
	}
	for _, n := range opts.toggle {
		recipe, err := pick(snap.Recommended, n)
		if err != nil {
			return err
		}
		if _, err := p.ToggleSaved(ctx, recipe); err != nil {
			return err
		}
	}

	if opts.show > 0 {
		recipe, err := pick(snap.Recommended, opts.show)
		if err != nil {
			return err
		}
		p.OpenDetail(recipe)
		fmt.Fprintln(out)
		printRecipe(out, *p.Snapshot().Detail)
		p.CloseDetail()
	}
	return nil
}

func readImage(path string) (types.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Image{}, fmt.Errorf("failed to read image: %w", err)
	}
	return types.Image{
		Filename:    filepath.Base(path),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}

func pick(recipes []types.Recipe, n int) (types.Recipe, error) {
	if n < 1 || n > len(recipes) {
		return types.Recipe{}, fmt.Errorf("no recipe number %d (choose 1-%d)", n, len(recipes))
	}
	return recipes[n-1], nil
}

func printIngredients(w io.Writer, snap pipeline.Snapshot) {
	selected := make(map[string]bool, len(snap.Selected))
	for _, name := range snap.Selected {
		selected[name] = true
	}
	fmt.Fprintln(w, "Ingredients:")
	for _, name := range snap.Recognized {
		mark := " "
		if selected[name] {
			mark = "x"
		}
		fmt.Fprintf(w, "  [%s] %s\n", mark, name)
	}
}
