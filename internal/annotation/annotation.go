// Package annotation defines append-only notes attached to papers.
package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/matsen/papershelf/internal/paper"
)

// Type is the kind of annotation.
type Type string

// Annotation types.
const (
	TypeNote      Type = "note"
	TypeHighlight Type = "highlight"
	TypeQuestion  Type = "question"
	TypeComment   Type = "comment"
)

// Types lists the valid annotation types.
var Types = []Type{TypeNote, TypeHighlight, TypeQuestion, TypeComment}

// MaxContentLength is the maximum annotation length in characters.
const MaxContentLength = 50000

// stampLayout is the created_at layout used in file names.
const stampLayout = "20060102150405"

// shortIDPattern constrains the id so that it is always safe in a file name.
var shortIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,36}$`)

// Validation errors.
var (
	ErrInvalidType     = errors.New("annotation type must be one of: note, highlight, question, comment")
	ErrEmptyContent    = errors.New("annotation content is required")
	ErrContentTooLong  = fmt.Errorf("annotation content exceeds %d characters", MaxContentLength)
	ErrInvalidShortID  = errors.New("annotation id must be 1-36 letters, digits or hyphens")
	ErrMissingCreated  = errors.New("annotation created_at is required")
	ErrPaperIDMismatch = errors.New("annotation paper_id does not match its paper")
)

// Annotation is one note on one paper.
type Annotation struct {
	// Identity: (Author, CreatedAt to the second, ID)
	ID        string         `json:"id"`
	PaperID   string         `json:"paper_id"`
	Author    paper.Username `json:"author"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	Type    Type   `json:"type"`
	Content string `json:"content"`
}

// ParseType converts a user-supplied type name.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w (got %q)", ErrInvalidType, s)
	}
	return t, nil
}

// Valid reports whether t is one of the enumerated types.
func (t Type) Valid() bool {
	for _, v := range Types {
		if t == v {
			return true
		}
	}
	return false
}

// New creates an annotation with a fresh short id, stamped at now.
func New(paperID string, author paper.Username, typ Type, content string, now time.Time) Annotation {
	now = now.UTC().Truncate(time.Second)
	return Annotation{
		ID:        uuid.NewString()[:8],
		PaperID:   paperID,
		Author:    author,
		CreatedAt: now,
		UpdatedAt: now,
		Type:      typ,
		Content:   content,
	}
}

// ValidateContent checks the content length bounds.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

// Validate checks every field, including that the identity is usable as a
// file name.
func (a *Annotation) Validate() error {
	if err := paper.ValidateID(a.PaperID); err != nil {
		return err
	}
	if !shortIDPattern.MatchString(a.ID) {
		return ErrInvalidShortID
	}
	if a.CreatedAt.IsZero() {
		return ErrMissingCreated
	}
	if !a.Type.Valid() {
		return ErrInvalidType
	}
	return ValidateContent(a.Content)
}

// BelongsTo returns ErrPaperIDMismatch unless a is an annotation of paperID.
func (a *Annotation) BelongsTo(paperID string) error {
	if a.PaperID != paperID {
		return fmt.Errorf("%w: %q is not %q", ErrPaperIDMismatch, a.PaperID, paperID)
	}
	return nil
}

// Key returns the identity of the annotation.
func (a *Annotation) Key() Key {
	return Key{
		Author:    a.Author.String(),
		CreatedAt: a.CreatedAt.UTC().Format(stampLayout),
		ID:        a.ID,
	}
}

// Key is the identity of an annotation.
type Key struct {
	Author    string
	CreatedAt string
	ID        string
}

// FileName returns the deterministic file name for the annotation.
func (a *Annotation) FileName() string {
	k := a.Key()
	return fmt.Sprintf("%s_%s_%s.json", k.Author, k.CreatedAt, k.ID)
}

// Decode parses and validates an annotation file.
func Decode(data []byte) (Annotation, error) {
	var a Annotation
	if err := json.Unmarshal(data, &a); err != nil {
		return Annotation{}, fmt.Errorf("parsing annotation: %w", err)
	}
	if err := a.Validate(); err != nil {
		return Annotation{}, err
	}
	return a, nil
}
