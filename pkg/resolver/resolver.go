// Package resolver picks a non-colliding name for a new file or media entry.
//
// A candidate such as "photo.png" is returned unchanged when nothing in the
// scope carries that name. Otherwise the resolver looks at existing
// "photo (N).png" / "photo (N)" entries, takes the lexicographically greatest
// one, and proposes N+1. If that slot is already taken the existing entry is
// handed back as a reuse signal instead of a fresh name.
//
// The resolver only reads through a View; every storage backend supplies that
// view and nothing else, so the suffix rules live in exactly one place.
package resolver

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"storagecompat/pkg/sanitizer"
)

// Scope identifies where name uniqueness is checked: a directory, a document
// tree or a media relative path, depending on the backend.
type Scope string

// View is the read-only query surface a storage backend exposes.
type View interface {
	// ExistsExact reports whether an entry named exactly name exists in scope.
	ExistsExact(ctx context.Context, scope Scope, name string) (bool, error)
	// ListWithPrefix returns every entry name in scope beginning with prefix.
	ListWithPrefix(ctx context.Context, scope Scope, prefix string) ([]string, error)
}

// EmptyChecker is implemented by views that can tell whether an existing
// entry has no content yet.
type EmptyChecker interface {
	IsEmpty(ctx context.Context, scope Scope, name string) (bool, error)
}

// Candidate is the name a caller wants before collision resolution.
type Candidate struct {
	BaseName  string
	Extension string // without the leading dot
}

// ParseCandidate cleans name and splits it into base name and extension.
// Only the ends of the whole name are trimmed.
func ParseCandidate(name string) (Candidate, error) {
	base, ext := sanitizer.SplitName(sanitizer.RemoveForbiddenChars(name))

	c := Candidate{BaseName: base, Extension: ext}
	if err := c.Validate(); err != nil {
		return Candidate{}, err
	}

	return c, nil
}

// NewCandidate builds a candidate from already separated parts. A leading dot
// on ext is dropped. Spaces are trimmed at the ends of the joined name only.
func NewCandidate(base, ext string) (Candidate, error) {
	c := Candidate{
		BaseName:  strings.TrimLeftFunc(sanitizer.DropForbiddenChars(base), unicode.IsSpace),
		Extension: strings.TrimRightFunc(sanitizer.DropForbiddenChars(strings.TrimPrefix(ext, ".")), unicode.IsSpace),
	}
	if c.Extension == "" {
		c.BaseName = strings.TrimRightFunc(c.BaseName, unicode.IsSpace)
	}
	if err := c.Validate(); err != nil {
		return Candidate{}, err
	}

	return c, nil
}

// Validate reports ErrInvalidCandidateName for an empty base name.
func (c Candidate) Validate() error {
	if c.BaseName == "" {
		return ErrInvalidCandidateName
	}

	return nil
}

// String returns the full filename, without a dangling separator when there
// is no extension.
func (c Candidate) String() string {
	return sanitizer.JoinName(c.BaseName, c.Extension)
}

// Resolved is the outcome of a resolution.
type Resolved struct {
	Name string
	// ReusedExisting is true when Name already exists in the scope and the
	// caller should use that entry instead of creating a new one.
	ReusedExisting bool
	// Suffix is the N of " (N)" that was assigned, 0 when the candidate was
	// returned unchanged.
	Suffix int
}

// Options configures a Resolver.
type Options struct {
	// ReuseEmpty hands back an exact match that has no content yet, when the
	// view implements EmptyChecker.
	ReuseEmpty bool
	Logger     *slog.Logger
}

// Resolver resolves candidates against a single view.
type Resolver struct {
	view       View
	reuseEmpty bool
	logger     *slog.Logger
}

// New creates a Resolver reading from view.
func New(view View, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Resolver{
		view:       view,
		reuseEmpty: opts.ReuseEmpty,
		logger:     logger,
	}
}

// Resolve resolves c against view with default options.
func Resolve(ctx context.Context, view View, scope Scope, c Candidate) (Resolved, error) {
	return New(view, Options{}).Resolve(ctx, scope, c)
}

// Resolve returns c unchanged when it does not collide in scope, and the next
// free " (N)" name otherwise. Backend failures come back as
// *BackendQueryError.
func (r *Resolver) Resolve(ctx context.Context, scope Scope, c Candidate) (Resolved, error) {
	if err := c.Validate(); err != nil {
		return Resolved{}, err
	}

	name := c.String()

	exists, err := r.view.ExistsExact(ctx, scope, name)
	if err != nil {
		return Resolved{}, wrapQueryError("exists", scope, err)
	}
	if !exists {
		return Resolved{Name: name}, nil
	}

	if r.reuseEmpty {
		if checker, ok := r.view.(EmptyChecker); ok {
			empty, err := checker.IsEmpty(ctx, scope, name)
			if err != nil {
				return Resolved{}, wrapQueryError("empty", scope, err)
			}
			if empty {
				r.logger.Debug("reusing empty entry", "scope", scope, "name", name)
				return Resolved{Name: name, ReusedExisting: true}, nil
			}
		}
	}

	existing, err := r.view.ListWithPrefix(ctx, scope, sanitizer.DuplicatePrefix(c.BaseName))
	if err != nil {
		return Resolved{}, wrapQueryError("list", scope, err)
	}

	n := highestSuffix(c, existing) + 1
	next := sanitizer.FormatDuplicate(c.BaseName, n, c.Extension)

	taken, err := r.view.ExistsExact(ctx, scope, next)
	if err != nil {
		return Resolved{}, wrapQueryError("exists", scope, err)
	}

	r.logger.Debug("resolved name collision",
		"scope", scope, "candidate", name, "resolved", next, "reused", taken)

	return Resolved{Name: next, ReusedExisting: taken, Suffix: n}, nil
}

// NextName runs the collision branch of Resolve over an in-memory listing of
// the scope. It assumes c itself is already taken.
func NextName(c Candidate, existing []string) Resolved {
	n := highestSuffix(c, existing) + 1
	next := sanitizer.FormatDuplicate(c.BaseName, n, c.Extension)

	for _, name := range existing {
		if name == next {
			return Resolved{Name: next, ReusedExisting: true, Suffix: n}
		}
	}

	return Resolved{Name: next, Suffix: n}
}

// highestSuffix parses N out of the lexicographically greatest duplicate of c.
// Ordering is by string, not by N: "photo (9).png" sorts after
// "photo (10).png".
func highestSuffix(c Candidate, existing []string) int {
	var last string
	for _, name := range existing {
		if !sanitizer.IsDuplicateOf(name, c.BaseName, c.Extension) {
			continue
		}
		if name > last {
			last = name
		}
	}

	return sanitizer.ParseDuplicateNumber(last)
}
