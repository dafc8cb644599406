// Package attachment stores bill documents (PDFs, photos) in an external
// object store. The rest of the application treats uploads and deletions
// as best-effort collaborator calls.
package attachment

import (
	"context"
	"io"
)

// Object identifies a stored attachment.
type Object struct {
	URL       string
	StorageID string
}

// Store is the external attachment store collaborator. Delete must
// tolerate ids that are missing or already deleted.
type Store interface {
	Put(ctx context.Context, filename, contentType string, body io.Reader) (Object, error)
	Delete(ctx context.Context, storageID string) error
}

// Noop discards uploads; used in tests and when no store is configured.
type Noop struct{}

func (Noop) Put(ctx context.Context, filename, contentType string, body io.Reader) (Object, error) {
	return Object{}, nil
}

func (Noop) Delete(ctx context.Context, storageID string) error {
	return nil
}
