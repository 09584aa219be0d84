package bundle

import (
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// Entry names inside a package.
const (
	ManifestName = "manifest.json"
	IndexName    = "index/papers.json"
	papersRoot   = "papers/"
	indexRoot    = "index/"
)

// entryKind classifies a package entry by its path.
type entryKind int

const (
	kindUnknown entryKind = iota
	kindManifest
	kindIndex
	kindMetadata
	kindSummary
	kindAnnotation
)

// layoutPatterns maps the recognised package layout to entry kinds.
// '/' is the separator so '*' never crosses a directory boundary.
var layoutPatterns = []struct {
	kind    entryKind
	pattern glob.Glob
}{
	{kindManifest, glob.MustCompile(ManifestName, '/')},
	{kindIndex, glob.MustCompile(IndexName, '/')},
	{kindMetadata, glob.MustCompile("papers/*/metadata.json", '/')},
	{kindSummary, glob.MustCompile("papers/*/summary.md", '/')},
	{kindAnnotation, glob.MustCompile("papers/*/annotations/*.json", '/')},
}

// classify returns the kind of a confined entry name.
func classify(name string) entryKind {
	for _, lp := range layoutPatterns {
		if lp.pattern.Match(name) {
			return lp.kind
		}
	}
	return kindUnknown
}

// paperIDOf returns the <id> segment of "papers/<id>/...".
func paperIDOf(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, papersRoot)
	if !ok {
		return "", false
	}
	id, _, found := strings.Cut(rest, "/")
	if !found || id == "" {
		return "", false
	}
	return id, true
}

// confined reports why an entry name escapes the package root, or "" if it
// is a safe relative path inside the recognised roots. Only the name is
// examined; nothing is decompressed.
func confined(name string) string {
	switch {
	case name == "":
		return "empty entry name"
	case strings.ContainsRune(name, 0):
		return "NUL byte in entry name"
	case strings.Contains(name, `\`):
		return "backslash in entry name"
	case strings.Contains(name, ":"):
		return "drive letter or scheme in entry name"
	case strings.HasPrefix(name, "/"):
		return "absolute entry name"
	}

	trimmed := strings.TrimSuffix(name, "/")
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == ".." {
			return "parent directory segment in entry name"
		}
	}
	// Without ".." segments Clean only drops "." and empty segments, so the
	// cleaned name stays below the root.
	clean := path.Clean(trimmed)
	switch {
	case clean == ManifestName:
	case clean == "index" || strings.HasPrefix(clean, indexRoot):
	case clean == "papers" || strings.HasPrefix(clean, papersRoot):
	default:
		return "entry outside manifest.json, index/ and papers/"
	}
	return ""
}

// canonical reports whether a confined entry name is already in the form
// the layout patterns match: no "." segments and no repeated slashes.
func canonical(name string) bool {
	trimmed := strings.TrimSuffix(name, "/")
	return path.Clean(trimmed) == trimmed
}
