package memgraph

import (
	"context"
	"sync"
)

// AuthRepository is the in-memory authorization label registry.
type AuthRepository struct {
	mu     sync.RWMutex
	labels map[string]struct{}
}

func NewAuthRepository() *AuthRepository {
	return &AuthRepository{labels: make(map[string]struct{})}
}

func (r *AuthRepository) AddAuthorization(_ context.Context, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels[label] = struct{}{}
	return nil
}

func (r *AuthRepository) RemoveAuthorization(_ context.Context, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.labels, label)
	return nil
}

// Has reports whether the label has been registered.
func (r *AuthRepository) Has(label string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.labels[label]
	return ok
}
