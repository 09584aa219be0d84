package bundle

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"

	"github.com/matsen/papershelf/internal/annotation"
	"github.com/matsen/papershelf/internal/apperr"
	"github.com/matsen/papershelf/internal/index"
	"github.com/matsen/papershelf/internal/logging"
	"github.com/matsen/papershelf/internal/paper"
)

var log = logging.New("bundle")

// Package is the trusted, fully parsed content of a validated archive.
type Package struct {
	Manifest Manifest     `json:"manifest"`
	Papers   []PaperEntry `json:"papers"`
	Index    *index.Index `json:"index,omitempty"` // Partial index as shipped; nil if absent or unreadable
	Entries  []EntryInfo  `json:"entries"`
	Dropped  []string     `json:"dropped"`
}

// PaperEntry is one validated paper from a package.
type PaperEntry struct {
	ID          string                  `json:"id"`
	Record      paper.Record            `json:"record"`
	Summary     string                  `json:"-"`
	HasSummary  bool                    `json:"has_summary"`
	Annotations []annotation.Annotation `json:"annotations"`
}

// EntryInfo compares an entry's declared size with what was measured.
type EntryInfo struct {
	Name       string `json:"name"`
	Declared   uint64 `json:"declared"`
	Compressed uint64 `json:"compressed"`
	Measured   int64  `json:"measured"`
}

// IDs returns the IDs of the validated papers, sorted.
func (p *Package) IDs() []string {
	ids := make([]string, len(p.Papers))
	for i, e := range p.Papers {
		ids[i] = e.ID
	}
	return ids
}

// Validate checks an untrusted archive and returns its trusted content.
// It never writes to disk. Checks run in order and stop at the first
// failure: archive structure, path confinement, declared resource bounds,
// manifest shape, then a streamed re-read that enforces the bounds against
// the bytes actually produced.
func Validate(r io.ReaderAt, size int64, limits Limits) (*Package, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, apperr.Wrap(apperr.InvalidPackage, err, "not a valid zip archive")
	}
	if zr == nil {
		return nil, apperr.Wrap(apperr.InvalidPackage, err, "not a valid zip archive")
	}

	if err := checkPaths(zr.File); err != nil {
		return nil, err
	}
	if err := checkDeclaredBounds(zr.File, limits); err != nil {
		return nil, err
	}
	if err := checkDuplicates(zr.File); err != nil {
		return nil, err
	}

	manifest, err := readManifest(zr.File, limits)
	if err != nil {
		return nil, err
	}

	contents, entries, err := streamAll(zr.File, limits)
	if err != nil {
		return nil, err
	}
	if err := verifyChecksums(manifest, contents); err != nil {
		return nil, err
	}

	pkg := &Package{
		Manifest: *manifest,
		Entries:  entries,
		Dropped:  []string{},
	}
	pkg.Papers = collectPapers(contents, pkg)
	if data, ok := contents[IndexName]; ok {
		idx, err := index.Decode(data)
		if err != nil {
			log.Warnf("ignoring unreadable package index: %v", err)
		} else {
			pkg.Index = idx
		}
	}

	if manifest.PaperCount != len(pkg.Papers) {
		log.Warnf("manifest declares %d papers, package contains %d valid papers", manifest.PaperCount, len(pkg.Papers))
	}
	return pkg, nil
}

// checkPaths rejects any entry whose name could escape the package root,
// then any confined name that is not in canonical form.
func checkPaths(files []*zip.File) error {
	for _, f := range files {
		if reason := confined(f.Name); reason != "" {
			return apperr.New(apperr.PathTraversal, "unsafe path in package: %q", f.Name).
				WithDetails("%s", reason)
		}
		if f.Mode()&fs.ModeSymlink != 0 {
			return apperr.New(apperr.PathTraversal, "symlink in package: %q", f.Name).
				WithDetails("symbolic links are not allowed")
		}
	}
	for _, f := range files {
		if !canonical(f.Name) {
			return apperr.New(apperr.InvalidPackage, "non-canonical entry name in package: %q", f.Name).
				WithDetails(`entry names may not contain "." segments or repeated slashes`)
		}
	}
	return nil
}

// checkDeclaredBounds applies the limits to the sizes the central directory
// claims, before anything is decompressed.
func checkDeclaredBounds(files []*zip.File, limits Limits) error {
	if len(files) > limits.MaxFiles {
		return apperr.New(apperr.PackageTooLarge, "package has %d entries", len(files)).
			WithDetails("limit is %d", limits.MaxFiles)
	}

	var total uint64
	for _, f := range files {
		declared := f.UncompressedSize64
		if declared > uint64(limits.MaxEntryBytes) {
			return apperr.New(apperr.PackageTooLarge, "entry %q declares %d bytes", f.Name, declared).
				WithDetails("per-entry limit is %d bytes", limits.MaxEntryBytes)
		}
		total += declared
		if total > uint64(limits.MaxTotalBytes) {
			return apperr.New(apperr.PackageTooLarge, "package declares more than %d bytes", limits.MaxTotalBytes).
				WithDetails("exceeded at entry %q", f.Name)
		}
		if declared == 0 {
			continue
		}
		if f.CompressedSize64 == 0 || float64(declared)/float64(f.CompressedSize64) > limits.MaxRatio {
			return apperr.New(apperr.PackageTooLarge, "entry %q has a suspicious compression ratio", f.Name).
				WithDetails("%d bytes from %d compressed, limit %.0f:1", declared, f.CompressedSize64, limits.MaxRatio)
		}
	}
	return nil
}

// checkDuplicates rejects archives that name the same entry twice; which
// copy a reader sees would otherwise depend on the reader.
func checkDuplicates(files []*zip.File) error {
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f.Name] {
			return apperr.New(apperr.InvalidPackage, "duplicate entry in package: %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// readManifest locates, reads and shape-checks manifest.json.
func readManifest(files []*zip.File, limits Limits) (*Manifest, error) {
	var mf *zip.File
	for _, f := range files {
		if f.Name == ManifestName {
			mf = f
			break
		}
	}
	if mf == nil {
		return nil, apperr.New(apperr.InvalidPackage, "package has no manifest.json")
	}
	if mf.UncompressedSize64 > maxManifestBytes {
		return nil, apperr.New(apperr.InvalidPackage, "manifest.json is too large").
			WithDetails("%d bytes, limit %d", mf.UncompressedSize64, maxManifestBytes)
	}

	limit := limits.entryCap(mf.CompressedSize64, 0)
	if limit > maxManifestBytes {
		limit = maxManifestBytes
	}
	data, err := readEntry(mf, limit)
	if err != nil {
		if errors.Is(err, errEntryTooLarge) {
			return nil, apperr.Wrap(apperr.PackageTooLarge, err, "manifest.json exceeds size limits")
		}
		return nil, apperr.Wrap(apperr.InvalidPackage, err, "cannot read manifest.json")
	}

	m, err := decodeManifest(data)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidPackage, err, "invalid manifest.json")
	}
	return m, nil
}

// streamAll decompresses every entry through an entryStream and keeps the
// content of recognised entries.
func streamAll(files []*zip.File, limits Limits) (map[string][]byte, []EntryInfo, error) {
	contents := make(map[string][]byte)
	entries := make([]EntryInfo, 0, len(files))
	stream := newEntryStream(files, limits)

	for {
		e, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, errEntryTooLarge) {
				return nil, nil, apperr.Wrap(apperr.PackageTooLarge, err, "package content exceeds size limits")
			}
			return nil, nil, apperr.Wrap(apperr.InvalidPackage, err, "corrupt package entry")
		}

		entries = append(entries, EntryInfo{
			Name:       e.File.Name,
			Declared:   e.File.UncompressedSize64,
			Compressed: e.File.CompressedSize64,
			Measured:   int64(len(e.Data)),
		})
		if kind := classify(e.File.Name); kind != kindUnknown {
			contents[e.File.Name] = e.Data
		} else {
			log.Warnf("ignoring unrecognised package entry %s", e.File.Name)
		}
	}
	return contents, entries, nil
}

// verifyChecksums checks every digest listed in the manifest.
func verifyChecksums(m *Manifest, contents map[string][]byte) error {
	for name, want := range m.Checksums {
		data, ok := contents[name]
		if !ok {
			return apperr.New(apperr.InvalidPackage, "manifest lists checksum for missing entry %q", name)
		}
		if got := checksum(data); got != want {
			return apperr.New(apperr.InvalidPackage, "checksum mismatch for %q", name).
				WithDetails("manifest %s, content %s", want, got)
		}
	}
	return nil
}

// collectPapers groups recognised entries by paper and decodes them,
// dropping anything that is not a well-formed paper.
func collectPapers(contents map[string][]byte, pkg *Package) []PaperEntry {
	drop := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		log.Warnf("dropping %s", msg)
		pkg.Dropped = append(pkg.Dropped, msg)
	}

	byID := make(map[string][]string)
	for name := range contents {
		if id, ok := paperIDOf(name); ok {
			byID[id] = append(byID[id], name)
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var papers []PaperEntry
	for _, id := range ids {
		if !paper.ValidID(id) {
			drop("papers/%s: invalid paper ID", id)
			continue
		}

		prefix := papersRoot + id + "/"
		meta, ok := contents[prefix+"metadata.json"]
		if !ok {
			drop("papers/%s: missing metadata.json", id)
			continue
		}
		var rec paper.Record
		if err := json.Unmarshal(meta, &rec); err != nil {
			drop("papers/%s: unreadable metadata.json: %v", id, err)
			continue
		}
		if rec.ID != id {
			drop("papers/%s: record id %q does not match directory", id, rec.ID)
			continue
		}

		entry := PaperEntry{ID: id, Record: rec, Annotations: []annotation.Annotation{}}
		if summary, ok := contents[prefix+"summary.md"]; ok {
			entry.Summary = string(summary)
			entry.HasSummary = true
		}

		names := byID[id]
		sort.Strings(names)
		seen := make(map[annotation.Key]bool)
		for _, name := range names {
			if classify(name) != kindAnnotation {
				continue
			}
			a, err := annotation.Decode(contents[name])
			if err != nil {
				drop("%s: %v", name, err)
				continue
			}
			if err := a.BelongsTo(id); err != nil {
				drop("%s: %v", name, err)
				continue
			}
			if seen[a.Key()] {
				drop("%s: duplicate annotation identity", name)
				continue
			}
			seen[a.Key()] = true
			entry.Annotations = append(entry.Annotations, a)
		}
		papers = append(papers, entry)
	}
	if papers == nil {
		papers = []PaperEntry{}
	}
	return papers
}
