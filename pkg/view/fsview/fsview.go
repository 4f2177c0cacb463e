// Package fsview exposes a directory tree on an afero filesystem as a
// storage backend. Scopes are directories relative to the root.
package fsview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"storagecompat/pkg/collector"
	"storagecompat/pkg/diskspace"
	"storagecompat/pkg/resolver"
	"storagecompat/pkg/safepath"
	"storagecompat/pkg/view"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// View is a filesystem-backed storage backend confined to a root directory.
type View struct {
	fs        afero.Fs
	validator *safepath.Validator
	collector *collector.Collector
}

var _ view.Backend = (*View)(nil)

// New creates a View over root on fsys. The root must exist.
func New(fsys afero.Fs, root string) (*View, error) {
	validator, err := safepath.New(fsys, root)
	if err != nil {
		return nil, err
	}

	return &View{
		fs:        fsys,
		validator: validator,
		collector: collector.New(fsys, collector.Options{}),
	}, nil
}

// Root returns the absolute root directory.
func (v *View) Root() string {
	return v.validator.Root()
}

// Dir returns the absolute directory for scope.
func (v *View) Dir(scope resolver.Scope) (string, error) {
	return v.validator.ResolveScope(string(scope))
}

// CanonicalScope returns the absolute scope directory.
func (v *View) CanonicalScope(scope resolver.Scope) (string, error) {
	return v.Dir(scope)
}

func (v *View) ExistsExact(ctx context.Context, scope resolver.Scope, name string) (bool, error) {
	path, err := v.entryPath(ctx, scope, name)
	if err != nil {
		return false, err
	}

	_, err = v.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

func (v *View) ListWithPrefix(ctx context.Context, scope resolver.Scope, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := v.Dir(scope)
	if err != nil {
		return nil, err
	}

	return v.collector.NamesWithPrefix(dir, prefix)
}

// IsEmpty reports whether name is a zero-length file or an empty directory.
func (v *View) IsEmpty(ctx context.Context, scope resolver.Scope, name string) (bool, error) {
	path, err := v.entryPath(ctx, scope, name)
	if err != nil {
		return false, err
	}

	return afero.IsEmpty(v.fs, path)
}

// Create makes an empty file, failing with view.ErrExists if name appeared
// since it was resolved. Missing parent directories are created.
func (v *View) Create(ctx context.Context, scope resolver.Scope, name, _ string) (string, error) {
	path, err := v.entryPath(ctx, scope, name)
	if err != nil {
		return "", err
	}

	if err := v.fs.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return "", fmt.Errorf("create scope directory: %w", err)
	}

	f, err := v.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", view.ErrExists, path)
		}
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	return path, nil
}

func (v *View) OpenWriter(ctx context.Context, scope resolver.Scope, name string) (io.WriteCloser, error) {
	path, err := v.entryPath(ctx, scope, name)
	if err != nil {
		return nil, err
	}

	f, err := v.fs.OpenFile(path, os.O_WRONLY|os.O_TRUNC, filePerm)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", view.ErrNotFound, path)
	}

	return f, err
}

func (v *View) Remove(ctx context.Context, scope resolver.Scope, name string) error {
	path, err := v.entryPath(ctx, scope, name)
	if err != nil {
		return err
	}

	if err := v.fs.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", view.ErrNotFound, path)
		}
		return err
	}

	return nil
}

func (v *View) Locate(ctx context.Context, scope resolver.Scope, name string) (string, error) {
	path, err := v.entryPath(ctx, scope, name)
	if err != nil {
		return "", err
	}

	if _, err := v.fs.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", view.ErrNotFound, path)
		}
		return "", err
	}

	return path, nil
}

// FreeSpace queries the volume holding scope. Only the OS filesystem can
// answer; other afero backends report view.UnknownFreeSpace.
func (v *View) FreeSpace(ctx context.Context, scope resolver.Scope) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, ok := v.fs.(*afero.OsFs); !ok {
		return view.UnknownFreeSpace, nil
	}

	dir, err := v.Dir(scope)
	if err != nil {
		return 0, err
	}
	// The scope directory may not exist until the first create.
	if ok, _ := afero.DirExists(v.fs, dir); !ok {
		dir = v.Root()
	}

	usage, err := diskspace.Of(dir)
	if errors.Is(err, diskspace.ErrUnsupported) {
		return view.UnknownFreeSpace, nil
	}
	if err != nil {
		return 0, err
	}

	return usage.Free, nil
}

func (v *View) entryPath(ctx context.Context, scope resolver.Scope, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir, err := v.Dir(scope)
	if err != nil {
		return "", err
	}

	return v.validator.JoinName(dir, name)
}
