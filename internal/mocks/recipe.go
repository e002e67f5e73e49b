package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pageza/pantrycam/internal/types"
)

// MockRecipeAPI is a mock implementation of the recipe calls of the gateway
type MockRecipeAPI struct {
	mock.Mock
}

func (m *MockRecipeAPI) RecognizeIngredients(ctx context.Context, img types.Image) ([]string, error) {
	args := m.Called(ctx, img)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRecipeAPI) RecommendRecipes(ctx context.Context, ingredients []string) ([]types.Recipe, error) {
	args := m.Called(ctx, ingredients)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Recipe), args.Error(1)
}

func (m *MockRecipeAPI) GetRecipe(ctx context.Context, id string) (*types.Recipe, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Recipe), args.Error(1)
}

func (m *MockRecipeAPI) SaveRecipe(ctx context.Context, recipe types.Recipe) (*types.SavedRecipe, error) {
	args := m.Called(ctx, recipe)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SavedRecipe), args.Error(1)
}

func (m *MockRecipeAPI) ListSavedRecipes(ctx context.Context) (*types.SavedRecipesPage, error) {
	args := m.Called(ctx)
	if fn, ok := args.Get(0).(func(context.Context) *types.SavedRecipesPage); ok {
		return fn(ctx), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SavedRecipesPage), args.Error(1)
}

func (m *MockRecipeAPI) RemoveSavedRecipe(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
