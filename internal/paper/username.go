package paper

import (
	"encoding/json"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxUsernameLength is the maximum length of a sanitized username.
	MaxUsernameLength = 50

	// DefaultUsername is used when sanitizing leaves nothing behind.
	DefaultUsername = "anonymous"
)

// Username is an author or creator identifier that is safe to embed in a
// file name. The only way to obtain a non-zero Username is SanitizeUsername,
// so holding one means the value has already been filtered.
type Username struct {
	name string
}

// SanitizeUsername filters raw through an allow-list of [A-Za-z0-9_-].
// Accents are folded first so "José" becomes "Jose" rather than "Jos_";
// every other disallowed rune becomes an underscore.
func SanitizeUsername(raw string) Username {
	folded, _, err := transform.String(foldAccents(), raw)
	if err != nil {
		folded = raw
	}

	var sb strings.Builder
	for _, r := range folded {
		if isUsernameRune(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
		if sb.Len() >= MaxUsernameLength {
			break
		}
	}

	name := sb.String()
	if strings.Trim(name, "_") == "" {
		name = DefaultUsername
	}
	return Username{name: name}
}

// foldAccents decomposes, drops combining marks, and recomposes.
func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

func isUsernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-':
		return true
	}
	return false
}

// String returns the sanitized name, or DefaultUsername for the zero value.
func (u Username) String() string {
	if u.name == "" {
		return DefaultUsername
	}
	return u.name
}

// MarshalJSON encodes the username as a JSON string.
func (u Username) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON decodes a JSON string and sanitizes it, so values read from
// untrusted files are filtered before any caller can see them.
func (u *Username) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = SanitizeUsername(raw)
	return nil
}
