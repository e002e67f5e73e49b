package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pageza/pantrycam/internal/types"
)

func summary(r types.Recipe) string {
	parts := []string{r.Name}
	var meta []string
	for _, s := range []string{r.Cuisine, r.CookingTime, r.Difficulty} {
		if s != "" {
			meta = append(meta, s)
		}
	}
	if len(meta) > 0 {
		parts = append(parts, "("+strings.Join(meta, ", ")+")")
	}
	return strings.Join(parts, " ")
}

func printRecipeList(w io.Writer, recipes []types.Recipe, isSaved func(string) bool) {
	fmt.Fprintln(w, "Recipes:")
	for i, r := range recipes {
		mark := ""
		if isSaved(r.ID) {
			mark = " [saved]"
		}
		fmt.Fprintf(w, "  %d. %s%s\n", i+1, summary(r), mark)
	}
}

func printRecipe(w io.Writer, r types.Recipe) {
	fmt.Fprintln(w, summary(r))
	if r.ID != "" {
		fmt.Fprintf(w, "id: %s\n", r.ID)
	}
	fmt.Fprintln(w, "\nIngredients:")
	for _, in := range r.Ingredients {
		fmt.Fprintf(w, "  - %s\n", in)
	}
	fmt.Fprintln(w, "\nInstructions:")
	for i, step := range r.Instructions {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}
	if r.Nutrition != "" {
		fmt.Fprintf(w, "\nNutrition: %s\n", r.Nutrition)
	}
	if r.Tips != "" {
		fmt.Fprintf(w, "Tips: %s\n", r.Tips)
	}
}
