// Package requirements derives an external-dependency manifest from the
// import declarations of a Go source file.
package requirements

import (
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"slices"
	"strconv"
	"strings"
)

// Extract parses the Go file at path and returns the module prefixes of its
// external imports, sorted and de-duplicated. Standard-library imports are
// excluded.
func Extract(path string) ([]string, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seen := map[string]bool{}
	var mods []string
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		if isStdlib(p) {
			continue
		}
		mod := modulePrefix(p)
		if !seen[mod] {
			seen[mod] = true
			mods = append(mods, mod)
		}
	}
	slices.Sort(mods)
	return mods, nil
}

// Write emits the manifest, one module path per line.
func Write(w io.Writer, mods []string) error {
	for _, m := range mods {
		if _, err := fmt.Fprintln(w, m); err != nil {
			return err
		}
	}
	return nil
}

// isStdlib reports whether an import path belongs to the standard library.
// Stdlib paths never contain a dot in their first element.
func isStdlib(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return !strings.Contains(first, ".")
}

// modulePrefix reduces an import path to a likely module path: three elements
// for the common code hosts (github.com/owner/repo/...), two for gopkg.in,
// otherwise the path as-is up to three elements.
func modulePrefix(path string) string {
	parts := strings.Split(path, "/")
	host := parts[0]

	keep := 3
	if host == "gopkg.in" {
		keep = 2
	}
	if len(parts) < keep {
		keep = len(parts)
	}
	return strings.Join(parts[:keep], "/")
}
