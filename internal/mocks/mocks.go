package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pageza/pantrycam/internal/types"
)

// MockImageStore is a mock implementation of imagestore.Store
type MockImageStore struct {
	mock.Mock
}

func (m *MockImageStore) Put(ctx context.Context, img types.Image) (string, error) {
	args := m.Called(ctx, img)
	return args.String(0), args.Error(1)
}
