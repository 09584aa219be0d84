package bundle

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/matsen/papershelf/internal/annotation"
	"github.com/matsen/papershelf/internal/apperr"
	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/index"
	"github.com/matsen/papershelf/internal/paper"
	"github.com/matsen/papershelf/internal/storage"
	"github.com/matsen/papershelf/internal/store"
)

// BuildOptions selects what goes into a package.
type BuildOptions struct {
	PaperIDs           []string // Empty means every indexed paper
	IncludeSummaries   bool
	IncludeAnnotations bool
	Creator            string
	Description        string
	OutputPath         string
}

// BuildResult reports what Build wrote.
type BuildResult struct {
	OutputPath          string   `json:"output_path,omitempty"`
	PaperCount          int      `json:"paper_count"`
	PaperIDs            []string `json:"paper_ids"`
	IncludesSummaries   bool     `json:"includes_summaries"`
	IncludesAnnotations bool     `json:"includes_annotations"`
	SummaryCount        int      `json:"summary_count"`
	AnnotationCount     int      `json:"annotation_count"`
	Missing             []string `json:"missing,omitempty"`
}

// packedPaper holds the encoded files of one paper, ready to be zipped.
type packedPaper struct {
	id          string
	metadata    []byte
	summary     []byte
	annotations map[string][]byte
}

// Build writes a package of papers from st to opts.OutputPath. The store is
// only read. The archive appears at the output path complete or not at all.
func Build(st *store.Store, opts BuildOptions) (*BuildResult, error) {
	for _, id := range opts.PaperIDs {
		if err := paper.ValidateID(id); err != nil {
			return nil, apperr.Wrap(apperr.InvalidPaperID, err, "invalid paper ID: %s", id)
		}
	}

	idx, err := st.LoadIndex()
	if errors.Is(err, index.ErrNotFound) {
		return nil, apperr.New(apperr.IndexNotFound, "paper index not found").
			WithDetails("looked in %s", config.IndexPath(st.Root))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.FileError, err, "reading paper index")
	}

	result := &BuildResult{PaperIDs: []string{}}
	selected := resolveSelection(st, idx, opts.PaperIDs, result)

	var packed []packedPaper
	for _, id := range selected {
		p, err := packPaper(st, id, opts)
		if err != nil {
			log.Warnf("skipping %s: %v", id, err)
			result.Missing = append(result.Missing, id)
			continue
		}
		packed = append(packed, *p)
		result.PaperIDs = append(result.PaperIDs, id)
		if p.summary != nil {
			result.SummaryCount++
		}
		result.AnnotationCount += len(p.annotations)
	}

	result.PaperCount = len(packed)
	result.IncludesSummaries = opts.IncludeSummaries && result.SummaryCount > 0
	result.IncludesAnnotations = opts.IncludeAnnotations && result.AnnotationCount > 0
	if result.PaperCount == 0 {
		log.Warnf("no papers to package; nothing written")
		return result, nil
	}

	manifest := Manifest{
		Version:             ManifestVersion,
		CreatedAt:           st.Now().UTC(),
		CreatedBy:           paper.SanitizeUsername(opts.Creator),
		PaperCount:          result.PaperCount,
		IncludesSummaries:   result.IncludesSummaries,
		IncludesAnnotations: result.IncludesAnnotations,
		Description:         opts.Description,
	}

	partial := idx.Subset(result.PaperIDs)
	partial.UpdatedAt = manifest.CreatedAt
	indexData, err := storage.MarshalJSON(partial)
	if err != nil {
		return nil, apperr.Wrap(apperr.FileError, err, "encoding partial index")
	}

	manifest.Checksums = checksumsFor(packed, indexData)
	manifestData, err := storage.MarshalJSON(manifest)
	if err != nil {
		return nil, apperr.Wrap(apperr.FileError, err, "encoding manifest")
	}

	if err := writeArchive(opts.OutputPath, manifest, manifestData, packed, indexData); err != nil {
		return nil, apperr.Wrap(apperr.FileError, err, "writing package %s", opts.OutputPath).
			WithHint("Check output path permissions.")
	}

	result.OutputPath = opts.OutputPath
	log.Infof("wrote %d papers to %s", result.PaperCount, opts.OutputPath)
	return result, nil
}

// resolveSelection returns the sorted IDs to package. Explicit IDs that are
// not in the store are recorded in result.Missing.
func resolveSelection(st *store.Store, idx *index.Index, explicit []string, result *BuildResult) []string {
	var selected []string
	if len(explicit) == 0 {
		for _, id := range idx.IDs() {
			if st.HasPaper(id) {
				selected = append(selected, id)
			} else {
				log.Warnf("index lists %s but its record is missing; skipping", id)
			}
		}
		return selected
	}

	seen := make(map[string]bool)
	for _, id := range explicit {
		if seen[id] {
			continue
		}
		seen[id] = true
		if st.HasPaper(id) {
			selected = append(selected, id)
		} else {
			result.Missing = append(result.Missing, id)
		}
	}
	sort.Strings(selected)
	return selected
}

// packPaper reads and encodes one paper's files.
func packPaper(st *store.Store, id string, opts BuildOptions) (*packedPaper, error) {
	rec, err := st.ReadRecord(id)
	if err != nil {
		return nil, err
	}
	meta, err := storage.MarshalJSON(rec)
	if err != nil {
		return nil, err
	}
	p := &packedPaper{id: id, metadata: meta, annotations: map[string][]byte{}}

	if opts.IncludeSummaries {
		text, ok, err := st.ReadSummary(id)
		if err != nil {
			return nil, err
		}
		if ok {
			p.summary = []byte(text)
		}
	}

	if opts.IncludeAnnotations {
		names, err := st.AnnotationFiles(id)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			data, err := st.ReadAnnotationFile(id, name)
			if err != nil {
				log.Warnf("skipping annotation %s of %s: %v", name, id, err)
				continue
			}
			a, err := annotation.Decode(data)
			if err == nil {
				err = a.BelongsTo(id)
			}
			if err != nil {
				log.Warnf("skipping invalid annotation %s of %s: %v", name, id, err)
				continue
			}
			encoded, err := storage.MarshalJSON(a)
			if err != nil {
				return nil, err
			}
			p.annotations[a.FileName()] = encoded
		}
	}
	return p, nil
}

func paperEntryName(id, file string) string {
	return papersRoot + id + "/" + file
}

func annotationEntryName(id, name string) string {
	return papersRoot + id + "/" + config.AnnotationsDir + "/" + name
}

func checksumsFor(packed []packedPaper, indexData []byte) map[string]string {
	sums := map[string]string{IndexName: checksum(indexData)}
	for _, p := range packed {
		sums[paperEntryName(p.id, config.MetadataFile)] = checksum(p.metadata)
		if p.summary != nil {
			sums[paperEntryName(p.id, config.SummaryFile)] = checksum(p.summary)
		}
		for name, data := range p.annotations {
			sums[annotationEntryName(p.id, name)] = checksum(data)
		}
	}
	return sums
}

// writeArchive writes the manifest first, then each paper, then the
// partial index, into a temp file that is renamed over outputPath.
func writeArchive(outputPath string, m Manifest, manifestData []byte, packed []packedPaper, indexData []byte) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, ".tmp-*.zip")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on error
	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	zw := zip.NewWriter(tmpFile)
	add := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: m.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("adding %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		return nil
	}

	if err := add(ManifestName, manifestData); err != nil {
		return err
	}
	for _, p := range packed {
		if err := add(paperEntryName(p.id, config.MetadataFile), p.metadata); err != nil {
			return err
		}
		if p.summary != nil {
			if err := add(paperEntryName(p.id, config.SummaryFile), p.summary); err != nil {
				return err
			}
		}
		names := make([]string, 0, len(p.annotations))
		for name := range p.annotations {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := add(annotationEntryName(p.id, name), p.annotations[name]); err != nil {
				return err
			}
		}
	}
	if err := add(IndexName, indexData); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing archive: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}
