package securepath

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/tablekit/internal/apperr"
)

func tempBase(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	return dir
}

func TestResolve_InsideBase(t *testing.T) {
	base := tempBase(t)
	if err := os.MkdirAll(filepath.Join(base, "sub", "deeper"), 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []string{
		"data.csv",
		"sub/data.csv",
		"sub/deeper/data.csv",
		"./sub/../data.csv",
		`sub\deeper\data.csv`,
		"missing/dir/file.csv",
	}
	for _, c := range cases {
		got, err := Resolve(c, base)
		if err != nil {
			t.Errorf("Resolve(%q): %v", c, err)
			continue
		}
		if !strings.HasPrefix(got, base+string(os.PathSeparator)) {
			t.Errorf("Resolve(%q) = %q, not under %q", c, got, base)
		}
	}
}

func TestResolve_AbsoluteInsideBase(t *testing.T) {
	base := tempBase(t)
	abs := filepath.Join(base, "x.csv")
	got, err := Resolve(abs, base)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != abs {
		t.Errorf("got %q, want %q", got, abs)
	}
}

func TestResolve_Escapes(t *testing.T) {
	base := tempBase(t)

	cases := []string{
		"../outside.csv",
		"../../etc/passwd",
		"a/../../etc/passwd",
		"sub/./../../x",
		`..\..\etc\passwd`,
		`a\..\..\etc\passwd`,
		"/etc/passwd",
		"C:/Windows/win.ini",
		".",
		"sub/..",
		"",
	}
	for _, c := range cases {
		_, err := Resolve(c, base)
		if err == nil {
			t.Errorf("Resolve(%q) succeeded, want rejection", c)
			continue
		}
		if !errors.Is(err, apperr.ErrPathSecurity) {
			t.Errorf("Resolve(%q) error = %v, want ErrPathSecurity", c, err)
		}
	}
}

func TestResolve_SymlinkEscape(t *testing.T) {
	base := tempBase(t)
	outside := tempBase(t)
	if err := os.WriteFile(filepath.Join(outside, "secret.csv"), []byte("a\n1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(base, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if _, err := Resolve("link/secret.csv", base); !errors.Is(err, apperr.ErrPathSecurity) {
		t.Errorf("symlinked escape error = %v, want ErrPathSecurity", err)
	}
	if _, err := Resolve("link/not-yet-created.csv", base); !errors.Is(err, apperr.ErrPathSecurity) {
		t.Errorf("symlinked escape to missing file error = %v, want ErrPathSecurity", err)
	}
}

func TestResolve_DanglingSymlink(t *testing.T) {
	base := tempBase(t)
	if err := os.Symlink(filepath.Join(base, "gone"), filepath.Join(base, "dangling")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	for _, candidate := range []string{"dangling", "dangling/data.csv"} {
		_, err := Resolve(candidate, base)
		var pse *apperr.PathSecurityError
		if !errors.As(err, &pse) {
			t.Errorf("Resolve(%q) error = %v, want *PathSecurityError", candidate, err)
		}
	}
}

func TestResolve_SymlinkedBase(t *testing.T) {
	real := tempBase(t)
	parent := tempBase(t)
	linked := filepath.Join(parent, "alias")
	if err := os.Symlink(real, linked); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, err := Resolve("file.csv", linked)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != filepath.Join(real, "file.csv") {
		t.Errorf("got %q, want canonical path under %q", got, real)
	}
}

func TestWithin(t *testing.T) {
	base := tempBase(t)
	if !Within("a/b.csv", base) {
		t.Error("a/b.csv should be within base")
	}
	if Within("../b.csv", base) {
		t.Error("../b.csv should not be within base")
	}
}
