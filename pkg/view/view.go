// Package view defines what a storage backend offers beyond the read-only
// resolver.View: creating, writing and removing entries.
package view

import (
	"context"
	"errors"
	"io"

	"storagecompat/pkg/resolver"
)

// UnknownFreeSpace is returned by FreeSpace when the backend cannot tell.
const UnknownFreeSpace int64 = -1

var (
	// ErrNotFound indicates the named entry does not exist in the scope.
	ErrNotFound = errors.New("entry not found")
	// ErrExists indicates an entry with that name was created concurrently.
	ErrExists = errors.New("entry already exists")
)

// Backend is a storage backend the create, copy and move commands write to.
type Backend interface {
	resolver.View
	resolver.EmptyChecker

	// Create makes a new empty entry and returns its location: a path, a
	// document URI or a media URI depending on the backend.
	Create(ctx context.Context, scope resolver.Scope, name, mimeType string) (string, error)
	// OpenWriter replaces the content of an existing entry.
	OpenWriter(ctx context.Context, scope resolver.Scope, name string) (io.WriteCloser, error)
	Remove(ctx context.Context, scope resolver.Scope, name string) error
	// Locate returns the location of an existing entry.
	Locate(ctx context.Context, scope resolver.Scope, name string) (string, error)
	// FreeSpace returns the bytes available to scope, or UnknownFreeSpace.
	FreeSpace(ctx context.Context, scope resolver.Scope) (int64, error)
	// CanonicalScope returns one spelling for every way of writing scope,
	// so callers can key locks on it.
	CanonicalScope(scope resolver.Scope) (string, error)
}
