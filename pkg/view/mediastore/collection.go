package mediastore

import (
	"context"
	"fmt"
	"io"

	"storagecompat/pkg/resolver"
	"storagecompat/pkg/view"
)

// Collection is the storage backend for one media type. Its scope is a
// relative path such as "Pictures/Trips"; an empty scope means the type's
// default directory.
type Collection struct {
	store     *Store
	mediaType MediaType
	owner     string
}

var _ view.Backend = (*Collection)(nil)

// View returns the collection of mediaType. New entries are attributed to
// owner.
func (s *Store) View(mediaType MediaType, owner string) *Collection {
	return &Collection{store: s, mediaType: mediaType, owner: owner}
}

// MediaType returns the collection's media type.
func (c *Collection) MediaType() MediaType {
	return c.mediaType
}

// CanonicalScope returns "<mediaType>:<relative path>/".
func (c *Collection) CanonicalScope(scope resolver.Scope) (string, error) {
	rel, err := NormalizeRelativePath(c.dir(scope))
	if err != nil {
		return "", err
	}

	return string(c.mediaType) + ":" + rel, nil
}

func (c *Collection) ExistsExact(ctx context.Context, scope resolver.Scope, name string) (bool, error) {
	files, err := c.store.inScope(ctx, c.mediaType, c.dir(scope), name)
	if err != nil {
		return false, err
	}

	return len(files) > 0, nil
}

func (c *Collection) ListWithPrefix(ctx context.Context, scope resolver.Scope, prefix string) ([]string, error) {
	files, err := c.store.withPrefix(ctx, c.mediaType, c.dir(scope), prefix)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.DisplayName)
	}

	return names, nil
}

// IsEmpty reports whether the first entry named name has no content.
func (c *Collection) IsEmpty(ctx context.Context, scope resolver.Scope, name string) (bool, error) {
	f, err := c.first(ctx, scope, name)
	if err != nil {
		return false, err
	}

	return f.Size == 0, nil
}

// Create inserts an empty entry and returns its content URI.
func (c *Collection) Create(ctx context.Context, scope resolver.Scope, name, mimeType string) (string, error) {
	f, err := c.store.Insert(ctx, MediaFile{
		MediaType:    c.mediaType,
		DisplayName:  name,
		RelativePath: c.dir(scope),
		MimeType:     mimeType,
		Owner:        c.owner,
	})
	if err != nil {
		return "", err
	}

	return f.URI(), nil
}

func (c *Collection) OpenWriter(ctx context.Context, scope resolver.Scope, name string) (io.WriteCloser, error) {
	f, err := c.first(ctx, scope, name)
	if err != nil {
		return nil, err
	}

	return c.store.OpenWriter(ctx, f.ID)
}

func (c *Collection) Remove(ctx context.Context, scope resolver.Scope, name string) error {
	f, err := c.first(ctx, scope, name)
	if err != nil {
		return err
	}

	return c.store.Delete(ctx, f.ID)
}

func (c *Collection) Locate(ctx context.Context, scope resolver.Scope, name string) (string, error) {
	f, err := c.first(ctx, scope, name)
	if err != nil {
		return "", err
	}

	return f.URI(), nil
}

// FreeSpace is unknown: the index does not live on the media volume.
func (c *Collection) FreeSpace(ctx context.Context, _ resolver.Scope) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return view.UnknownFreeSpace, nil
}

func (c *Collection) dir(scope resolver.Scope) string {
	if scope == "" {
		return c.mediaType.DefaultDir()
	}

	return string(scope)
}

// first returns the oldest entry named name in scope.
func (c *Collection) first(ctx context.Context, scope resolver.Scope, name string) (MediaFile, error) {
	files, err := c.store.inScope(ctx, c.mediaType, c.dir(scope), name)
	if err != nil {
		return MediaFile{}, err
	}
	if len(files) == 0 {
		return MediaFile{}, fmt.Errorf("%w: %s/%s", view.ErrNotFound, c.dir(scope), name)
	}

	return files[0], nil
}
