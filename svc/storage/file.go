package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"pastry/pkg/domain"
)

// File writes paste bodies under root. Authenticated authors share a
// per-user directory; anonymous pastes are partitioned by creation
// date. The filename is a stable hash of the slug, so re-storing the
// same slug lands on the same path.
type File struct {
	root string
	now  func() time.Time
}

func NewFile(root string) *File {
	return &File{root: root, now: time.Now}
}

func (f *File) Store(ctx context.Context, slug, authorName string, content []byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	dir := f.namespace(authorName)
	if err := os.MkdirAll(dir, 0o775); err != nil {
		return "", errors.Wrap(err, "create storage directory")
	}
	path := filepath.Join(dir, locatorName(slug))
	if err := os.WriteFile(path, content, 0o664); err != nil {
		return "", errors.Wrap(err, "write paste file")
	}
	return path, nil
}

func (f *File) Retrieve(ctx context.Context, locator string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	content, err := os.ReadFile(locator)
	if os.IsNotExist(err) {
		return nil, domain.ErrStorageMissing
	}
	if err != nil {
		return nil, errors.Wrap(err, "read paste file")
	}
	return content, nil
}

// Delete is idempotent: a locator that is already gone is not an
// error.
func (f *File) Delete(ctx context.Context, locator string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	err := os.Remove(locator)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove paste file")
	}
	return nil
}

func (f *File) Mode() domain.StorageMode {
	return domain.StorageFile
}

func (f *File) namespace(authorName string) string {
	if authorName != "" {
		return filepath.Join(f.root, "users", authorName)
	}
	now := f.now()
	return filepath.Join(f.root,
		"pastes",
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		fmt.Sprintf("%02d", now.Day()),
	)
}

func locatorName(slug string) string {
	sum := md5.Sum([]byte(slug))
	return hex.EncodeToString(sum[:]) + ".txt"
}
