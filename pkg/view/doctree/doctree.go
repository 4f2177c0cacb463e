// Package doctree exposes document-provider trees as a storage backend.
//
// A scope is a tree URI, a document URI or a bare document ID. It is mapped
// onto a directory through docuri.StorageRoots and served by an fsview
// confined to that storage volume, so a scope can never reach outside the
// volume it names.
package doctree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"storagecompat/pkg/docuri"
	"storagecompat/pkg/resolver"
	"storagecompat/pkg/view"
	"storagecompat/pkg/view/fsview"
)

// ErrVolumeUnavailable indicates the storage volume a scope names is not
// mounted.
var ErrVolumeUnavailable = errors.New("storage volume unavailable")

// View is a document-tree backend.
type View struct {
	fs    afero.Fs
	roots docuri.StorageRoots

	mu      sync.Mutex
	volumes map[string]*fsview.View
}

var _ view.Backend = (*View)(nil)

// New creates a View resolving storage IDs through roots on fsys.
func New(fsys afero.Fs, roots docuri.StorageRoots) *View {
	return &View{
		fs:      fsys,
		roots:   roots,
		volumes: make(map[string]*fsview.View),
	}
}

// Roots returns the storage-root table.
func (v *View) Roots() docuri.StorageRoots {
	return v.roots
}

func (v *View) ExistsExact(ctx context.Context, scope resolver.Scope, name string) (bool, error) {
	t, err := v.target(scope)
	if err != nil {
		return false, err
	}

	return t.files.ExistsExact(ctx, t.dir, name)
}

func (v *View) ListWithPrefix(ctx context.Context, scope resolver.Scope, prefix string) ([]string, error) {
	t, err := v.target(scope)
	if err != nil {
		return nil, err
	}

	return t.files.ListWithPrefix(ctx, t.dir, prefix)
}

func (v *View) IsEmpty(ctx context.Context, scope resolver.Scope, name string) (bool, error) {
	t, err := v.target(scope)
	if err != nil {
		return false, err
	}

	return t.files.IsEmpty(ctx, t.dir, name)
}

// Create makes an empty document and returns its document URI below the
// scope's tree.
func (v *View) Create(ctx context.Context, scope resolver.Scope, name, mimeType string) (string, error) {
	t, err := v.target(scope)
	if err != nil {
		return "", err
	}

	if _, err := t.files.Create(ctx, t.dir, name, mimeType); err != nil {
		return "", err
	}

	return t.childURI(name), nil
}

func (v *View) OpenWriter(ctx context.Context, scope resolver.Scope, name string) (io.WriteCloser, error) {
	t, err := v.target(scope)
	if err != nil {
		return nil, err
	}

	return t.files.OpenWriter(ctx, t.dir, name)
}

func (v *View) Remove(ctx context.Context, scope resolver.Scope, name string) error {
	t, err := v.target(scope)
	if err != nil {
		return err
	}

	return t.files.Remove(ctx, t.dir, name)
}

func (v *View) Locate(ctx context.Context, scope resolver.Scope, name string) (string, error) {
	t, err := v.target(scope)
	if err != nil {
		return "", err
	}

	if _, err := t.files.Locate(ctx, t.dir, name); err != nil {
		return "", err
	}

	return t.childURI(name), nil
}

func (v *View) FreeSpace(ctx context.Context, scope resolver.Scope) (int64, error) {
	t, err := v.target(scope)
	if err != nil {
		return 0, err
	}

	return t.files.FreeSpace(ctx, t.dir)
}

// Path returns the filesystem directory a scope maps to.
func (v *View) Path(scope resolver.Scope) (string, error) {
	t, err := v.target(scope)
	if err != nil {
		return "", err
	}

	return t.files.Dir(t.dir)
}

// CanonicalScope returns the directory a scope maps to, so a tree URI and
// the matching document ID share one key.
func (v *View) CanonicalScope(scope resolver.Scope) (string, error) {
	return v.Path(scope)
}

type target struct {
	files     *fsview.View
	dir       resolver.Scope // relative to the volume root
	treeID    string
	storageID string
	basePath  string
}

func (t target) childURI(name string) string {
	return docuri.DocumentURI(t.treeID, docuri.DocumentID(t.storageID, path.Join(t.basePath, name)))
}

func (v *View) target(scope resolver.Scope) (target, error) {
	doc, err := docuri.Parse(string(scope))
	if err != nil {
		return target{}, err
	}

	if doc.RawPath != "" {
		storageID, basePath, err := v.roots.FromPath(v.roots.Resolve(doc))
		if err != nil {
			return target{}, err
		}
		doc.StorageID, doc.BasePath = storageID, basePath
	}

	files, err := v.volume(doc.StorageID)
	if err != nil {
		return target{}, err
	}

	treeID := doc.TreeID
	if treeID == "" {
		treeID = doc.ID()
	}

	return target{
		files:     files,
		dir:       resolver.Scope(doc.BasePath),
		treeID:    treeID,
		storageID: doc.StorageID,
		basePath:  doc.BasePath,
	}, nil
}

func (v *View) volume(storageID string) (*fsview.View, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if files, ok := v.volumes[storageID]; ok {
		return files, nil
	}

	root := v.roots.ToPath(storageID, "")
	if !v.isVolumeRoot(storageID, root) {
		return nil, fmt.Errorf("%w: %s: outside the storage roots", ErrVolumeUnavailable, storageID)
	}

	files, err := fsview.New(v.fs, root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrVolumeUnavailable, storageID, err)
	}
	v.volumes[storageID] = files

	return files, nil
}

// isVolumeRoot reports whether root is primary storage or a directory
// directly below the volumes root.
func (v *View) isVolumeRoot(storageID, root string) bool {
	if storageID == docuri.PrimaryStorageID {
		return filepath.Clean(root) == filepath.Clean(v.roots.External)
	}
	if v.roots.Volumes == "" {
		return false
	}

	return filepath.Dir(filepath.Clean(root)) == filepath.Clean(v.roots.Volumes)
}
