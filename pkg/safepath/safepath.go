// Package safepath confines scope lookups and file creation to a root
// directory on an afero filesystem.
package safepath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var (
	// ErrPathEscape indicates an attempt to access a path outside the root.
	ErrPathEscape = errors.New("path escapes root directory")
	// ErrSymlinkEscape indicates a symlink points outside the root.
	ErrSymlinkEscape = errors.New("symlink target escapes root directory")
	// ErrInvalidRoot indicates the root path is invalid.
	ErrInvalidRoot = errors.New("invalid root directory")
)

// Validator ensures all paths are contained within a root directory.
type Validator struct {
	fs   afero.Fs
	root string // Absolute, cleaned path to root directory.
}

// New creates a Validator for root on fsys. The root must be an existing
// directory.
func New(fsys afero.Fs, root string) (*Validator, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidRoot)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	cleanRoot := filepath.Clean(absRoot)

	info, err := fsys.Stat(cleanRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory", ErrInvalidRoot)
	}

	return &Validator{fs: fsys, root: cleanRoot}, nil
}

// Root returns the absolute path to the root directory.
func (v *Validator) Root() string {
	return v.root
}

// Contains checks if the given path is within the root directory.
// It does NOT follow symlinks.
func (v *Validator) Contains(path string) bool {
	return v.containsPath(path) == nil
}

// ValidatePath checks if a path is safely contained within root.
func (v *Validator) ValidatePath(path string) error {
	return v.containsPath(path)
}

// ValidateSymlink checks that a symlink at path, if any, points inside root.
// Filesystems without symlink support always pass.
func (v *Validator) ValidateSymlink(path string) error {
	if err := v.containsPath(path); err != nil {
		return err
	}

	lstater, ok := v.fs.(afero.Lstater)
	if !ok {
		return nil
	}
	linkReader, ok := v.fs.(afero.LinkReader)
	if !ok {
		return nil
	}

	info, _, err := lstater.LstatIfPossible(path)
	if err != nil {
		return fmt.Errorf("cannot stat path: %w", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return nil
	}

	target, err := linkReader.ReadlinkIfPossible(path)
	if err != nil {
		return fmt.Errorf("cannot read symlink: %w", err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}

	if err := v.containsPath(target); err != nil {
		return fmt.Errorf("%w: %s -> %s", ErrSymlinkEscape, path, target)
	}

	return nil
}

// ResolveScope turns a scope relative to root ("", ".", "Pictures/Trips")
// into an absolute directory inside root. Absolute scopes are accepted when
// they already lie inside root.
func (v *Validator) ResolveScope(scope string) (string, error) {
	dir, err := v.ResolveSafePath(v.root, scope)
	if err != nil {
		return "", fmt.Errorf("scope %q: %w", scope, err)
	}

	return dir, nil
}

// ResolveSafePath resolves a potentially relative path to an absolute path
// within the root directory. Returns error if result would escape root.
func (v *Validator) ResolveSafePath(basePath, relativePath string) (string, error) {
	var fullPath string
	if filepath.IsAbs(relativePath) {
		fullPath = relativePath
	} else {
		fullPath = filepath.Join(basePath, relativePath)
	}

	cleanPath := filepath.Clean(fullPath)

	if err := v.containsPath(cleanPath); err != nil {
		return "", err
	}

	return cleanPath, nil
}

// JoinName joins a single path element onto dir. name must be a plain base
// name: no separators, not "." or "..".
func (v *Validator) JoinName(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: invalid name %q", ErrPathEscape, name)
	}

	path := filepath.Join(dir, name)
	if err := v.containsPath(path); err != nil {
		return "", err
	}

	return path, nil
}

// containsPath checks if path is within root and returns error if not.
func (v *Validator) containsPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: cannot resolve path", ErrPathEscape)
	}

	if !isSubPath(v.root, filepath.Clean(absPath)) {
		return ErrPathEscape
	}

	return nil
}

// isSubPath checks if child is a subpath of parent.
// Both paths must be absolute and clean.
func isSubPath(parent, child string) bool {
	if parent == child {
		return true
	}

	parentWithSep := parent
	if !strings.HasSuffix(parentWithSep, string(filepath.Separator)) {
		parentWithSep += string(filepath.Separator)
	}

	return strings.HasPrefix(child, parentWithSep)
}
