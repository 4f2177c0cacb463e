package sanitizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatDuplicate inserts " (n)" before the extension,
// e.g. ("photo", 2, "png") becomes "photo (2).png" and ("README", 1, "")
// becomes "README (1)".
func FormatDuplicate(base string, n int, ext string) string {
	return JoinName(fmt.Sprintf("%s (%d)", base, n), ext)
}

// DuplicatePrefix returns the prefix shared by every duplicate of base.
func DuplicatePrefix(base string) string {
	return base + " ("
}

// ParseDuplicateNumber returns the integer between the last "(" and the
// following ")". It returns 0 when there is no such number or it does not fit
// in an int with room for one more duplicate.
func ParseDuplicateNumber(name string) int {
	open := strings.LastIndexByte(name, '(')
	if open < 0 {
		return 0
	}

	rest := name[open+1:]
	closing := strings.IndexByte(rest, ')')
	if closing < 0 {
		return 0
	}

	n, err := strconv.Atoi(rest[:closing])
	if err != nil || n == math.MaxInt {
		return 0
	}

	return n
}

// IsDuplicateOf reports whether name has the form "base (N).ext" or
// "base (N)" for some decimal N. Both forms are accepted regardless of ext so
// that an extension-less duplicate still counts against a typed candidate.
func IsDuplicateOf(name, base, ext string) bool {
	rest, ok := strings.CutPrefix(name, DuplicatePrefix(base))
	if !ok {
		return false
	}

	closing := strings.IndexByte(rest, ')')
	if closing <= 0 || !allDigits(rest[:closing]) {
		return false
	}

	tail := rest[closing+1:]
	return tail == "" || (ext != "" && tail == "."+ext)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
