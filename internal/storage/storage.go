package storage

import (
	"context"
	"io"
	"path"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Avatars stores user avatar images on an ObjectStorage backend,
// keyed by user id.
type Avatars struct {
	backend ObjectStorage
}

// NewAvatars constructs an avatar store over the provided backend.
func NewAvatars(backend ObjectStorage) *Avatars {
	return &Avatars{backend: backend}
}

// EnsureBucket ensures the configured bucket exists.
func (a *Avatars) EnsureBucket(ctx context.Context) error {
	return a.backend.EnsureBucket(ctx)
}

// Save uploads a user's avatar and returns its storage key.
func (a *Avatars) Save(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (string, error) {
	key := path.Join("avatars", userID)
	if err := a.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// Open reads an avatar by its storage key.
func (a *Avatars) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return a.backend.Get(ctx, key)
}

// Remove deletes an avatar by its storage key.
func (a *Avatars) Remove(ctx context.Context, key string) error {
	return a.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (a *Avatars) Bucket() string {
	return a.backend.Bucket()
}
