// Package imagestore archives uploaded ingredient photos.
package imagestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/pageza/pantrycam/internal/types"
)

// Store keeps an uploaded image and returns where it can be found again.
type Store interface {
	Put(ctx context.Context, img types.Image) (string, error)
}

// DefaultMemoryLimit is how many images a MemoryStore keeps before it drops
// the oldest.
const DefaultMemoryLimit = 16

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithLimit caps the number of kept images. Values below one keep a single
// image.
func WithLimit(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n < 1 {
			n = 1
		}
		s.limit = n
	}
}

// MemoryStore keeps the most recent images in process. It is the default
// when no bucket is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	images map[string]types.Image
	// order holds keys oldest first.
	order []string
	limit int
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		images: make(map[string]types.Image),
		limit:  DefaultMemoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Put(_ context.Context, img types.Image) (string, error) {
	key := objectKey(img.ContentType)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[key] = img
	s.order = append(s.order, key)
	for len(s.order) > s.limit {
		delete(s.images, s.order[0])
		s.order = s.order[1:]
	}
	return "mem://" + key, nil
}

// Get returns an image previously stored under location.
func (s *MemoryStore) Get(location string) (types.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[trimScheme(location)]
	return img, ok
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

// objectKey builds a unique key with an extension matching contentType.
func objectKey(contentType string) string {
	ext := ""
	if m := mimetype.Lookup(contentType); m != nil {
		ext = m.Extension()
	}
	return fmt.Sprintf("uploads/%s%s", uuid.New().String(), ext)
}

func trimScheme(location string) string {
	const scheme = "mem://"
	if len(location) > len(scheme) && location[:len(scheme)] == scheme {
		return location[len(scheme):]
	}
	return location
}
