package devserver

import (
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pageza/pantrycam/internal/types"
)

const maxRecommendations = 10

// DefaultCatalog seeds the recommender.
var DefaultCatalog = []CatalogRecipe{
	{
		ID:           "c0a80001-0000-4000-8000-000000000001",
		Name:         "Classic Pancakes",
		Cuisine:      "American",
		CookingTime:  "20 minutes",
		Difficulty:   "easy",
		Ingredients:  StringList{"flour", "egg", "milk", "sugar", "butter"},
		Instructions: StringList{"Whisk the dry ingredients.", "Beat in egg and milk.", "Cook ladles of batter in a buttered pan."},
		Nutrition:    "Approx. 220 kcal per pancake",
		Tips:         "Let the batter rest for ten minutes.",
	},
	{
		ID:           "c0a80001-0000-4000-8000-000000000002",
		Name:         "Flour Tortillas",
		Cuisine:      "Mexican",
		CookingTime:  "30 minutes",
		Difficulty:   "medium",
		Ingredients:  StringList{"flour", "salt", "water", "oil"},
		Instructions: StringList{"Mix flour and salt.", "Add oil and warm water and knead.", "Roll thin and cook on a dry skillet."},
		Tips:         "Keep cooked tortillas under a towel.",
	},
	{
		ID:           "c0a80001-0000-4000-8000-000000000003",
		Name:         "Shakshuka",
		Cuisine:      "Middle Eastern",
		CookingTime:  "35 minutes",
		Difficulty:   "easy",
		Ingredients:  StringList{"egg", "tomato", "onion", "pepper", "garlic", "cumin"},
		Instructions: StringList{"Soften onion, pepper and garlic.", "Add tomato and cumin and simmer.", "Crack in the eggs and cover until set."},
		Nutrition:    "Approx. 310 kcal per serving",
	},
	{
		ID:           "c0a80001-0000-4000-8000-000000000004",
		Name:         "Flatbread",
		Cuisine:      "Mediterranean",
		CookingTime:  "25 minutes",
		Difficulty:   "easy",
		Ingredients:  StringList{"flour", "yogurt", "salt", "oil"},
		Instructions: StringList{"Combine flour, yogurt and salt.", "Divide and roll out.", "Cook in a hot oiled pan."},
	},
	{
		ID:           "c0a80001-0000-4000-8000-000000000005",
		Name:         "Tomato Omelette",
		Cuisine:      "French",
		CookingTime:  "10 minutes",
		Difficulty:   "easy",
		Ingredients:  StringList{"egg", "tomato", "butter", "salt"},
		Instructions: StringList{"Beat the eggs with salt.", "Cook in butter and add diced tomato.", "Fold and serve."},
	},
	{
		ID:           "c0a80001-0000-4000-8000-000000000006",
		Name:         "Garlic Rice",
		Cuisine:      "Filipino",
		CookingTime:  "15 minutes",
		Difficulty:   "easy",
		Ingredients:  StringList{"rice", "garlic", "oil", "salt"},
		Instructions: StringList{"Fry sliced garlic until golden.", "Add cooked rice and salt and toss."},
	},
}

// SeedCatalog inserts recipes, leaving existing ids alone.
func SeedCatalog(db *gorm.DB, recipes []CatalogRecipe) error {
	if len(recipes) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&recipes).Error
}

// Recommend ranks catalog recipes by how many of their ingredients match the
// given names. Recipes without a match are left out.
func Recommend(catalog []CatalogRecipe, ingredients []string) []types.Recipe {
	wanted := make(map[string]struct{}, len(ingredients))
	for _, in := range ingredients {
		wanted[strings.ToLower(strings.TrimSpace(in))] = struct{}{}
	}

	type scored struct {
		recipe CatalogRecipe
		score  int
	}
	var hits []scored
	for _, r := range catalog {
		score := 0
		for _, in := range r.Ingredients {
			if _, ok := wanted[strings.ToLower(in)]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{recipe: r, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].recipe.Name < hits[j].recipe.Name
	})

	out := make([]types.Recipe, 0, len(hits))
	for i, h := range hits {
		if i == maxRecommendations {
			break
		}
		out = append(out, h.recipe.toAPI())
	}
	return out
}
