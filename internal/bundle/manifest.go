package bundle

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/matsen/papershelf/internal/paper"
)

// ManifestVersion is the package format version written by Build.
const ManifestVersion = "1.0"

// Manifest describes a package.
type Manifest struct {
	Version             string         `json:"version"`
	CreatedAt           time.Time      `json:"created_at"`
	CreatedBy           paper.Username `json:"created_by"`
	PaperCount          int            `json:"paper_count"`
	IncludesSummaries   bool           `json:"includes_summaries"`
	IncludesAnnotations bool           `json:"includes_annotations"`
	Description         string         `json:"description,omitempty"`

	// Checksums maps entry names to BLAKE2b-256 hex digests of their content.
	Checksums map[string]string `json:"checksums,omitempty"`
}

// checksum returns the hex BLAKE2b-256 digest of data.
func checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// decodeManifest parses a manifest and checks its shape: version must be a
// non-empty string and paper_count a non-negative integer.
func decodeManifest(data []byte) (*Manifest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("manifest is not a JSON object: %w", err)
	}

	var version string
	if v, ok := raw["version"]; !ok {
		return nil, fmt.Errorf("manifest has no version")
	} else if err := json.Unmarshal(v, &version); err != nil || version == "" {
		return nil, fmt.Errorf("manifest version must be a non-empty string")
	}

	var count float64
	if v, ok := raw["paper_count"]; !ok {
		return nil, fmt.Errorf("manifest has no paper_count")
	} else if err := json.Unmarshal(v, &count); err != nil || count < 0 || count != math.Trunc(count) || count > math.MaxInt32 {
		return nil, fmt.Errorf("manifest paper_count must be a non-negative integer")
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}
