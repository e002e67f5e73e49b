package types

import (
	"time"
)

// Recipe represents a recipe as exchanged with the API. ID is assigned by the
// server once the recipe is persisted and is empty for recommendation results.
type Recipe struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name" binding:"required"`
	Cuisine      string   `json:"cuisine"`
	CookingTime  string   `json:"cooking_time"`
	Difficulty   string   `json:"difficulty"`
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
	Nutrition    string   `json:"nutrition,omitempty"`
	Tips         string   `json:"tips,omitempty"`
}

// HasID reports whether the recipe carries a server-assigned identifier.
func (r Recipe) HasID() bool {
	return r.ID != ""
}

// SavedRecipe is a recipe persisted for the user.
type SavedRecipe struct {
	Recipe
	SavedAt time.Time `json:"saved_at"`
}

// SavedRecipesPage is the body of GET /api/v1/recipes/saved
type SavedRecipesPage struct {
	Recipes []Recipe `json:"recipes"`
	Total   int      `json:"total"`
}

// RecognitionResponse is the body returned by the ingredient detector
type RecognitionResponse struct {
	Ingredients []string `json:"ingredients"`
}

// RecommendRequest represents the request body for recipe recommendations
type RecommendRequest struct {
	Ingredients []string `json:"ingredients" binding:"required,min=1"`
}

// RecommendResponse is the body returned by the recommender
type RecommendResponse struct {
	Recipes []Recipe `json:"recipes"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
