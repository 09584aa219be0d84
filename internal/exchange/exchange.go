// Package exchange is the programmatic surface of the package exchange
// engine: build a package, import one, and manage annotations. Every
// function returns *apperr.Error values so callers can map failures to the
// error envelope.
package exchange

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/matsen/papershelf/internal/annotation"
	"github.com/matsen/papershelf/internal/apperr"
	"github.com/matsen/papershelf/internal/bundle"
	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/logging"
	"github.com/matsen/papershelf/internal/merge"
	"github.com/matsen/papershelf/internal/storage"
	"github.com/matsen/papershelf/internal/store"
)

var log = logging.New("exchange")

// BuildRequest asks for a package of papers from a store.
type BuildRequest struct {
	StorePath          string
	PaperIDs           []string // Empty means every indexed paper
	IncludeSummaries   bool
	IncludeAnnotations bool
	Username           string
	Description        string
	OutputPath         string
}

// ImportRequest asks for a package file to be merged into a store.
type ImportRequest struct {
	StorePath   string
	PackagePath string
	Overwrite   bool
	Limits      bundle.Limits // Zero value means bundle.DefaultLimits
	LockTimeout time.Duration // Zero means config.DefaultLockTimeout
}

// AnnotationRequest asks for an annotation to be added to a paper.
type AnnotationRequest struct {
	StorePath   string
	PaperID     string
	Username    string
	Type        string
	Content     string
	LockTimeout time.Duration
}

// BuildPackage writes a package. The store is only read.
func BuildPackage(req BuildRequest) (*bundle.BuildResult, error) {
	if req.OutputPath == "" {
		return nil, apperr.New(apperr.InvalidArgument, "output path is required").
			WithHint("Pass --output with the path of the .zip to create.")
	}
	st, err := openStore(req.StorePath)
	if err != nil {
		return nil, err
	}
	return bundle.Build(st, bundle.BuildOptions{
		PaperIDs:           req.PaperIDs,
		IncludeSummaries:   req.IncludeSummaries,
		IncludeAnnotations: req.IncludeAnnotations,
		Creator:            req.Username,
		Description:        req.Description,
		OutputPath:         req.OutputPath,
	})
}

// ImportPackage validates a package file and merges it into the store.
// Validation happens before anything in the store is touched, so a
// rejected package leaves the store exactly as it was.
func ImportPackage(req ImportRequest) (*merge.Result, error) {
	pkg, err := InspectPackage(req.PackagePath, req.Limits)
	if err != nil {
		if apperr.IsSecurity(err) {
			log.Errorf("rejected hostile package %s: %v", req.PackagePath, err)
		}
		return nil, err
	}

	st, err := openStore(req.StorePath)
	if err != nil {
		return nil, err
	}

	var result *merge.Result
	err = WithWriteLock(st, req.LockTimeout, func() error {
		var merr error
		result, merr = merge.Merge(st, pkg, merge.Options{
			Overwrite: req.Overwrite,
			Source:    filepath.Base(req.PackagePath),
		})
		if result != nil {
			recordHistory(st, req.PackagePath, pkg, result)
		}
		return merr
	})
	return result, err
}

// recordHistory appends the import to the store's history. A failure is
// logged and never fails the import.
func recordHistory(st *store.Store, path string, pkg *bundle.Package, result *merge.Result) {
	failed := make([]string, len(result.Failed))
	for i, f := range result.Failed {
		failed[i] = f.ID
	}
	entry := store.HistoryEntry{
		ImportedAt:      st.Now().UTC(),
		Source:          path,
		CreatedBy:       pkg.Manifest.CreatedBy.String(),
		ImportedIDs:     result.ImportedIDs,
		SkippedIDs:      result.SkippedIDs,
		Failed:          failed,
		AnnotationCount: result.AnnotationCount,
	}
	if err := st.AppendHistory(entry); err != nil {
		log.Warnf("could not record import history: %v", err)
	}
}

// InspectPackage validates a package file without touching any store.
func InspectPackage(path string, limits bundle.Limits) (*bundle.Package, error) {
	if path == "" {
		return nil, apperr.New(apperr.InvalidArgument, "package path is required")
	}
	if limits == (bundle.Limits{}) {
		limits = bundle.DefaultLimits()
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Wrap(apperr.FileError, err, "package not found: %s", path).
				WithHint("Check the package path.")
		}
		return nil, apperr.Wrap(apperr.FileError, err, "opening package %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, apperr.Wrap(apperr.FileError, err, "reading package %s", path)
	}
	if info.IsDir() {
		return nil, apperr.New(apperr.InvalidArgument, "package path is a directory: %s", path)
	}
	return bundle.Validate(f, info.Size(), limits)
}

// AddAnnotation adds an annotation to a paper under the writer lock.
func AddAnnotation(req AnnotationRequest) (*annotation.Annotation, error) {
	st, err := openStore(req.StorePath)
	if err != nil {
		return nil, err
	}

	var a *annotation.Annotation
	err = WithWriteLock(st, req.LockTimeout, func() error {
		var aerr error
		a, aerr = annotation.Add(st, req.PaperID, req.Username, req.Type, req.Content)
		return aerr
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnnotations renders the annotations of a paper in the given format.
func ListAnnotations(paperID, format, storePath string) (string, error) {
	st, err := openStore(storePath)
	if err != nil {
		return "", err
	}
	anns, err := annotation.List(st, paperID)
	if err != nil {
		return "", err
	}
	return annotation.Format(paperID, anns, format)
}

// WithWriteLock runs fn holding the store's writer lock, after finishing
// or discarding anything an interrupted writer left behind.
func WithWriteLock(st *store.Store, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		timeout = config.DefaultLockTimeout
	}
	release, err := st.Lock(timeout)
	defer release()
	if err != nil {
		if errors.Is(err, storage.ErrLocked) {
			return apperr.Wrap(apperr.FileError, err, "store is busy").
				WithHint("Another shelf process is writing to this store; try again when it finishes.")
		}
		return apperr.Wrap(apperr.FileError, err, "locking store")
	}
	if err := st.Recover(); err != nil {
		return apperr.Wrap(apperr.FileError, err, "recovering interrupted write")
	}
	return fn()
}

func openStore(path string) (*store.Store, error) {
	if path == "" {
		return nil, apperr.New(apperr.InvalidArgument, "store path is required")
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.FileError, err, "opening store %s", path)
	}
	return st, nil
}
