package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/plate/internal/config"
	"github.com/hpungsan/plate/internal/errors"
)

type fakeStore struct {
	keys map[string]bool
}

func (f *fakeStore) Stat(_ context.Context, key string) error {
	if !f.keys[key] {
		return errors.NewNotFound("image", key)
	}
	return nil
}

func (f *fakeStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example.com/" + key + "?ttl=" + ttl.String(), nil
}

func TestResolver_PassesThroughURLs(t *testing.T) {
	r := NewResolver(nil, time.Minute)
	ctx := context.Background()

	require.NoError(t, r.Check(ctx, "https://cdn.example.com/a.jpg"))
	u, err := r.URL(ctx, "HTTP://cdn.example.com/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "HTTP://cdn.example.com/a.jpg", u)
}

func TestResolver_NoStore(t *testing.T) {
	r := NewResolver(nil, time.Minute)
	err := r.Check(context.Background(), "uploads/a.jpg")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	err = r.Check(context.Background(), "  ")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestResolver_ObjectKeys(t *testing.T) {
	r := NewResolver(&fakeStore{keys: map[string]bool{"uploads/u1/lunch.jpg": true}}, 15*time.Minute)
	ctx := context.Background()

	require.NoError(t, r.Check(ctx, "uploads/u1/lunch.jpg"))
	assert.True(t, errors.Is(r.Check(ctx, "uploads/u1/missing.jpg"), errors.ErrNotFound))

	u, err := r.URL(ctx, "uploads/u1/lunch.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example.com/uploads/u1/lunch.jpg?ttl=15m0s", u)
}

func TestS3Store(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && strings.HasSuffix(r.URL.Path, "/meals/present.jpg") {
			w.Header().Set("Content-Type", "image/jpeg")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store, err := NewS3Store(context.Background(), config.StorageConfig{
		Bucket:    "meals",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "AKIATEST",
		SecretKey: "secret",
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Stat(ctx, "present.jpg"))
	assert.True(t, errors.Is(store.Stat(ctx, "absent.jpg"), errors.ErrNotFound))

	u, err := store.PresignGet(ctx, "present.jpg", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, srv.URL+"/meals/present.jpg?"), "got %s", u)
	assert.Contains(t, u, "X-Amz-Expires=300")
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), config.StorageConfig{})
	require.Error(t, err)
}
