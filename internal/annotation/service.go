package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/matsen/papershelf/internal/apperr"
	"github.com/matsen/papershelf/internal/logging"
	"github.com/matsen/papershelf/internal/paper"
	"github.com/matsen/papershelf/internal/storage"
	"github.com/matsen/papershelf/internal/store"
)

var log = logging.New("annotation")

// Output formats accepted by Format.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

// Formats lists the valid output formats.
var Formats = []string{FormatJSON, FormatMarkdown, FormatText}

// Add creates an annotation on an existing paper. The author is sanitized;
// the file is written atomically and never replaces an existing one.
func Add(st *store.Store, paperID, author, typeName, content string) (*Annotation, error) {
	if err := paper.ValidateID(paperID); err != nil {
		return nil, apperr.Wrap(apperr.InvalidPaperID, err, "invalid paper ID: %s", paperID)
	}
	typ, err := ParseType(typeName)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidArgument, err, "invalid annotation type: %s", typeName).
			WithHint("Valid types: note, highlight, question, comment.")
	}
	if err := ValidateContent(content); err != nil {
		return nil, apperr.Wrap(apperr.InvalidArgument, err, "invalid annotation content")
	}
	if !st.HasPaper(paperID) {
		return nil, apperr.New(apperr.PaperNotFound, "paper not found: %s", paperID)
	}

	a := New(paperID, paper.SanitizeUsername(author), typ, content, st.Now())
	data, err := storage.MarshalJSON(a)
	if err != nil {
		return nil, apperr.Wrap(apperr.FileError, err, "encoding annotation")
	}
	if err := st.WriteAnnotationFile(paperID, a.FileName(), data); err != nil {
		if errors.Is(err, store.ErrPaperNotFound) {
			return nil, apperr.New(apperr.PaperNotFound, "paper not found: %s", paperID)
		}
		return nil, apperr.Wrap(apperr.FileError, err, "saving annotation for %s", paperID)
	}

	log.Infof("saved annotation %s for paper %s", a.ID, paperID)
	return &a, nil
}

// List returns the annotations of a paper, newest first. Files that cannot
// be read or decoded are skipped with a warning.
func List(st *store.Store, paperID string) ([]Annotation, error) {
	if err := paper.ValidateID(paperID); err != nil {
		return nil, apperr.Wrap(apperr.InvalidPaperID, err, "invalid paper ID: %s", paperID)
	}
	if !st.HasPaper(paperID) {
		return nil, apperr.New(apperr.PaperNotFound, "paper not found: %s", paperID)
	}

	names, err := st.AnnotationFiles(paperID)
	if err != nil {
		return nil, apperr.Wrap(apperr.FileError, err, "listing annotations for %s", paperID)
	}

	type loaded struct {
		name string
		ann  Annotation
	}
	var all []loaded
	for _, name := range names {
		data, err := st.ReadAnnotationFile(paperID, name)
		if err != nil {
			log.Warnf("failed to read annotation %s: %v", name, err)
			continue
		}
		a, err := Decode(data)
		if err != nil {
			log.Warnf("skipping invalid annotation %s: %v", name, err)
			continue
		}
		all = append(all, loaded{name: name, ann: a})
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].ann.CreatedAt.Equal(all[j].ann.CreatedAt) {
			return all[i].ann.CreatedAt.After(all[j].ann.CreatedAt)
		}
		return all[i].name < all[j].name
	})

	out := make([]Annotation, len(all))
	for i, l := range all {
		out[i] = l.ann
	}
	return out, nil
}

// Format renders annotations as json, markdown or text.
func Format(paperID string, anns []Annotation, format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return formatJSON(paperID, anns)
	case FormatMarkdown:
		return formatMarkdown(paperID, anns), nil
	case FormatText, "":
		return formatText(paperID, anns), nil
	}
	return "", apperr.New(apperr.InvalidArgument, "invalid format: %s", format).
		WithHint("Valid formats: " + strings.Join(Formats, ", ") + ".")
}

func formatJSON(paperID string, anns []Annotation) (string, error) {
	if anns == nil {
		anns = []Annotation{}
	}
	out := struct {
		PaperID     string       `json:"paper_id"`
		Count       int          `json:"count"`
		Annotations []Annotation `json:"annotations"`
	}{paperID, len(anns), anns}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func formatMarkdown(paperID string, anns []Annotation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Annotations for Paper %s\n\n", paperID)
	fmt.Fprintf(&sb, "**Total annotations:** %d\n\n---\n\n", len(anns))
	for _, a := range anns {
		typ := string(a.Type)
		fmt.Fprintf(&sb, "### %s\n\n", strings.ToUpper(typ[:1])+typ[1:])
		fmt.Fprintf(&sb, "**Author:** %s  \n", a.Author)
		fmt.Fprintf(&sb, "**Created:** %s\n\n", a.CreatedAt.UTC().Format("2006-01-02 15:04"))
		fmt.Fprintf(&sb, "%s\n\n---\n\n", a.Content)
	}
	return sb.String()
}

func formatText(paperID string, anns []Annotation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Annotations for Paper %s\n", paperID)
	fmt.Fprintf(&sb, "Total: %d\n", len(anns))
	sb.WriteString(strings.Repeat("=", 40) + "\n\n")
	for _, a := range anns {
		fmt.Fprintf(&sb, "[%s] by %s\n", strings.ToUpper(string(a.Type)), a.Author)
		fmt.Fprintf(&sb, "Created: %s\n\n", a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
		fmt.Fprintf(&sb, "%s\n\n", a.Content)
		sb.WriteString(strings.Repeat("-", 40) + "\n")
	}
	return sb.String()
}
