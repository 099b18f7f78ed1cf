package storage

import (
	"context"

	"pastry/pkg/domain"
)

// Backend abstracts where paste bodies live: directly on the entity or
// in a file referenced by a locator. Selected once at startup from the
// paste_storage config flag.
type Backend interface {
	// Store persists content for slug and returns the locator to keep
	// on the entity. authorName namespaces file storage for logged-in
	// authors; empty means anonymous.
	Store(ctx context.Context, slug, authorName string, content []byte) (string, error)
	Retrieve(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) error
	Mode() domain.StorageMode
}

// Inline keeps content on the entity itself; the locator is the
// content.
type Inline struct{}

func (Inline) Store(ctx context.Context, slug, authorName string, content []byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return string(content), nil
}

func (Inline) Retrieve(ctx context.Context, locator string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return []byte(locator), nil
}

func (Inline) Delete(ctx context.Context, locator string) error {
	return nil
}

func (Inline) Mode() domain.StorageMode {
	return domain.StorageInline
}
