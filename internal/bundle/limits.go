package bundle

import "github.com/matsen/papershelf/internal/config"

const (
	mib = 1024 * 1024

	// maxManifestBytes bounds the manifest independently of MaxEntryBytes.
	maxManifestBytes = 1 * mib
)

// Limits bounds the resources an untrusted package may consume.
type Limits struct {
	MaxFiles      int
	MaxTotalBytes int64
	MaxEntryBytes int64
	MaxRatio      float64
}

// DefaultLimits returns the standard bounds: 10000 files, 500 MiB total,
// 100 MiB per entry, and a 100:1 compression ratio.
func DefaultLimits() Limits {
	return Limits{
		MaxFiles:      10000,
		MaxTotalBytes: 500 * mib,
		MaxEntryBytes: 100 * mib,
		MaxRatio:      100,
	}
}

// LimitsFromConfig applies config overrides on top of DefaultLimits.
// Zero or negative overrides are ignored.
func LimitsFromConfig(c config.LimitsConfig) Limits {
	l := DefaultLimits()
	if c.MaxFiles > 0 {
		l.MaxFiles = c.MaxFiles
	}
	if c.MaxTotalMB > 0 {
		l.MaxTotalBytes = c.MaxTotalMB * mib
	}
	if c.MaxEntryMB > 0 {
		l.MaxEntryBytes = c.MaxEntryMB * mib
	}
	if c.MaxRatio > 0 {
		l.MaxRatio = c.MaxRatio
	}
	return l
}

// entryCap is the most bytes an entry may decompress to given what has
// already been read: the per-entry bound, what is left of the total, and
// what its compressed size allows at the maximum ratio.
func (l Limits) entryCap(compressed uint64, running int64) int64 {
	c := l.MaxEntryBytes
	if left := l.MaxTotalBytes - running; left < c {
		c = left
	}
	if byRatio := float64(compressed) * l.MaxRatio; byRatio < float64(c) {
		c = int64(byRatio)
	}
	if c < 0 {
		c = 0
	}
	return c
}
