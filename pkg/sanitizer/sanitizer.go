// Package sanitizer provides filename cleanup and splitting utilities shared
// by every storage backend, so that all of them agree on what a base name and
// an extension are.
package sanitizer

import (
	"strings"
	"unicode"
)

// forbiddenChars are rejected by at least one of the supported storage
// backends (FAT-style SD cards, the document provider, the media database).
const forbiddenChars = `\/:*?"<>|`

// RemoveForbiddenChars drops control characters and characters that are not
// allowed in a filename on removable storage, then trims surrounding spaces.
func RemoveForbiddenChars(name string) string {
	return strings.TrimSpace(DropForbiddenChars(name))
}

// DropForbiddenChars is RemoveForbiddenChars without trimming, for parts of a
// name whose surrounding spaces are significant.
func DropForbiddenChars(name string) string {
	var result strings.Builder
	result.Grow(len(name))

	for _, r := range name {
		if unicode.IsControl(r) || strings.ContainsRune(forbiddenChars, r) {
			continue
		}
		result.WriteRune(r)
	}

	return result.String()
}

// SplitName splits a filename at its last dot.
// A name whose only dot is the leading one (".nomedia") is all base name.
// A trailing dot ("notes.") stays in the base name, with an empty extension.
// The returned extension never includes the separator.
func SplitName(name string) (base, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return name, ""
	}

	return name[:i], name[i+1:]
}

// JoinName is the inverse of SplitName. An empty extension produces no
// trailing separator.
func JoinName(base, ext string) string {
	if ext == "" {
		return base
	}

	return base + "." + ext
}
