// Package storage resolves uploaded image references to fetchable URLs.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/hpungsan/plate/internal/errors"
)

// ObjectStore is the subset of an object store the resolver needs.
type ObjectStore interface {
	// Stat returns a NOT_FOUND PlateError when key does not exist.
	Stat(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Resolver turns image refs into URLs. Refs that are already http(s) URLs pass
// through untouched; everything else is an object key in the store.
type Resolver struct {
	store ObjectStore
	ttl   time.Duration
}

// NewResolver creates a resolver. store may be nil, in which case only
// http(s) refs resolve.
func NewResolver(store ObjectStore, ttl time.Duration) *Resolver {
	return &Resolver{store: store, ttl: ttl}
}

// IsURL reports whether ref is an absolute http(s) URL.
func IsURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}

// Check verifies that ref resolves. Missing objects yield NOT_FOUND.
func (r *Resolver) Check(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return errors.NewInvalidRequest("image ref is required")
	}
	if IsURL(ref) {
		return nil
	}
	if r.store == nil {
		return errors.NewNotFound("image", ref)
	}
	return r.store.Stat(ctx, ref)
}

// URL returns a fetchable URL for ref.
func (r *Resolver) URL(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if IsURL(ref) {
		return ref, nil
	}
	if r.store == nil {
		return "", errors.NewNotFound("image", ref)
	}
	return r.store.PresignGet(ctx, ref, r.ttl)
}
