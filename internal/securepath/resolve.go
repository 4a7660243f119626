// Package securepath resolves untrusted relative paths against a trusted base
// directory and rejects anything that would escape it.
package securepath

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/starford/tablekit/internal/apperr"
)

// Resolve canonicalizes candidate against base and returns the canonical
// path. The result always lies strictly below the canonical base; anything
// else (absolute paths elsewhere, ".." chains, symlinks pointing out, the
// base itself) fails with an *apperr.PathSecurityError.
//
// Backslashes in candidate are treated as separators on every platform.
// The target does not need to exist.
func Resolve(candidate, base string) (string, error) {
	if candidate == "" {
		return "", reject(candidate, base, "empty path")
	}
	if base == "" {
		return "", reject(candidate, base, "empty base directory")
	}

	baseCanon, err := canonical(base)
	if err != nil {
		return "", fmt.Errorf("securepath: resolve base %s: %w", base, err)
	}

	norm := strings.ReplaceAll(candidate, `\`, "/")
	native := filepath.FromSlash(norm)

	var target string
	switch {
	case hasVolume(norm) && runtime.GOOS != "windows":
		// A drive-qualified path can never name something under a POSIX base.
		return "", reject(candidate, base, "absolute path outside base")
	case strings.HasPrefix(norm, "/") || filepath.IsAbs(native):
		target = native
	default:
		target = filepath.Join(baseCanon, native)
	}

	targetCanon, err := canonical(target)
	if err != nil {
		// A dangling or looping symlink cannot be proven to stay inside base.
		return "", reject(candidate, base, "unresolvable symlink: "+err.Error())
	}

	rel, err := filepath.Rel(baseCanon, targetCanon)
	if err != nil {
		return "", reject(candidate, base, "not comparable with base")
	}
	switch {
	case rel == ".":
		return "", reject(candidate, base, "resolves to the base itself")
	case rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel):
		return "", reject(candidate, base, "escapes base directory")
	}
	return targetCanon, nil
}

// Within reports whether candidate resolves strictly inside base.
func Within(candidate, base string) bool {
	_, err := Resolve(candidate, base)
	return err == nil
}

// canonical makes p absolute and clean, then evaluates symlinks on the
// longest prefix of p that exists. The non-existent tail is appended as is.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	existing := abs
	var tail []string
	for {
		if _, statErr := os.Lstat(existing); statErr == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		tail = append([]string{filepath.Base(existing)}, tail...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{resolved}, tail...)...), nil
}

func hasVolume(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func reject(candidate, base, reason string) error {
	return &apperr.PathSecurityError{Candidate: candidate, Base: base, Reason: reason}
}
