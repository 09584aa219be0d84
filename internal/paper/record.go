package paper

import (
	"bytes"
	"encoding/json"
	"reflect"
	"slices"
	"sort"
	"strings"
	"time"
)

// Record is the persisted metadata for one collected paper.
// It is stored as papers/<id>/metadata.json; the summary text lives next to
// it in summary.md.
type Record struct {
	// Identity
	ID string `json:"id"`

	// Metadata
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Abstract  string   `json:"abstract"`
	Published string   `json:"published,omitempty"` // As reported by the source, usually RFC 3339

	// Collection bookkeeping
	CollectedAt        time.Time  `json:"collected_at"` // Set once on first ingestion
	Topics             []string   `json:"topics"`
	HasSummary         bool       `json:"has_summary"`
	SummaryGeneratedAt *time.Time `json:"summary_generated_at,omitempty"`

	// Import tracking
	ImportedAt   *time.Time `json:"imported_at,omitempty"`
	ImportedFrom string     `json:"imported_from,omitempty"`

	// Extra keeps fields this version does not model (categories, links, ...)
	// so that exporting and re-importing a record never drops data.
	Extra map[string]json.RawMessage `json:"-"`
}

// recordFields is Record without methods, used to avoid recursive (un)marshaling.
type recordFields Record

// knownFields lists the JSON keys modeled by Record.
var knownFields = func() map[string]bool {
	known := make(map[string]bool)
	t := reflect.TypeOf(recordFields{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			known[name] = true
		}
	}
	return known
}()

// UnmarshalJSON decodes the modeled fields and stashes the rest in Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields recordFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Record(fields)
	r.Extra = nil
	for key, value := range raw {
		if knownFields[key] {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[key] = value
	}
	return nil
}

// MarshalJSON encodes the modeled fields merged with Extra.
func (r Record) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(recordFields(r))
	if err != nil || len(r.Extra) == 0 {
		return data, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range r.Extra {
		if _, ok := merged[key]; !ok {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

// NormalizeTopics trims, de-duplicates and sorts a topic list.
// Topics form a set, so order carries no meaning.
func NormalizeTopics(topics []string) []string {
	seen := make(map[string]bool, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SameContent reports whether two records carry the same paper content.
// Bookkeeping fields (collection, summary and import stamps) are ignored.
func (r Record) SameContent(o Record) bool {
	if r.ID != o.ID || r.Title != o.Title || r.Abstract != o.Abstract || r.Published != o.Published {
		return false
	}
	if !slices.Equal(r.Authors, o.Authors) {
		return false
	}
	if !slices.Equal(NormalizeTopics(r.Topics), NormalizeTopics(o.Topics)) {
		return false
	}
	if len(r.Extra) != len(o.Extra) {
		return false
	}
	for key, a := range r.Extra {
		b, ok := o.Extra[key]
		if !ok || !sameJSON(a, b) {
			return false
		}
	}
	return true
}

func sameJSON(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
