package fileref

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/starford/tablekit/internal/apperr"
)

// readArchiveEntry opens the archive at base, finds rel and returns the
// entry's bytes. The archive handle is closed before returning.
func readArchiveEntry(base, rel string) ([]byte, error) {
	name, err := entryName(rel)
	if err != nil {
		return nil, &apperr.PathSecurityError{Candidate: rel, Base: base, Reason: err.Error()}
	}
	locator := base + "/" + name

	zr, err := zip.OpenReader(base)
	if err != nil {
		return nil, &apperr.IOError{Op: "open archive", Locator: base, Err: err}
	}
	defer zr.Close()

	f := lookupEntry(zr.File, name)
	if f == nil {
		return nil, &apperr.IOError{Op: "lookup", Locator: locator, Err: fs.ErrNotExist}
	}

	rc, err := f.Open()
	if err != nil {
		return nil, &apperr.IOError{Op: "open entry", Locator: base + "/" + f.Name, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &apperr.IOError{Op: "read entry", Locator: base + "/" + f.Name, Err: err}
	}
	return data, nil
}

// lookupEntry finds name in files. The exact entry wins; otherwise every
// directory of the archive is probed for dir+name, one level only, in
// archive order. With several same-named candidates the first match is
// returned; which one that is for duplicates is not defined further.
func lookupEntry(files []*zip.File, name string) *zip.File {
	byName := make(map[string]*zip.File, len(files))
	for _, f := range files {
		if _, dup := byName[f.Name]; !dup {
			byName[f.Name] = f
		}
	}
	if f, ok := byName[name]; ok && !f.FileInfo().IsDir() {
		return f
	}

	for _, dir := range archiveDirs(files) {
		if f, ok := byName[dir+name]; ok && !f.FileInfo().IsDir() {
			return f
		}
	}
	return nil
}

// archiveDirs lists directory names (with trailing slash) in first-seen
// order. Archives written without explicit directory entries still expose
// the parent directory of each file.
func archiveDirs(files []*zip.File) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(d string) {
		if d == "" || d == "./" {
			return
		}
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	for _, f := range files {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			add(strings.TrimSuffix(f.Name, "/") + "/")
			continue
		}
		if dir := path.Dir(f.Name); dir != "." {
			add(dir + "/")
		}
	}
	return out
}

// entryName normalizes rel into a slash-separated archive entry name.
func entryName(rel string) (string, error) {
	n := strings.ReplaceAll(rel, `\`, "/")
	if strings.HasPrefix(n, "/") {
		return "", fmt.Errorf("absolute entry name")
	}
	n = path.Clean(n)
	switch {
	case n == ".":
		return "", fmt.Errorf("empty entry name")
	case n == ".." || strings.HasPrefix(n, "../"):
		return "", fmt.Errorf("entry name escapes archive root")
	}
	return n, nil
}
