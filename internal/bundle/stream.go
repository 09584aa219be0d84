package bundle

import (
	"archive/zip"
	"compress/flate"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// errEntryTooLarge is returned by readCapped when a reader yields more
// than the cap allows.
var errEntryTooLarge = errors.New("entry exceeds size bound")

// readCapped reads r to EOF, failing as soon as more than limit bytes
// arrive. hint is the declared size, used only to size the first buffer;
// the buffer never grows past limit+1 bytes whatever the reader delivers.
func readCapped(r io.Reader, limit, hint int64) ([]byte, error) {
	if limit < 0 {
		limit = 0
	}
	size := hint
	if size < 0 || size > limit {
		size = limit
	}
	buf := make([]byte, 0, size+1)

	for {
		if len(buf) == cap(buf) {
			if int64(len(buf)) > limit {
				return nil, errEntryTooLarge
			}
			next := int64(cap(buf)) * 2
			if next > limit+1 {
				next = limit + 1
			}
			grown := make([]byte, len(buf), next)
			copy(grown, buf)
			buf = grown
		}

		n, err := r.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if int64(len(buf)) > limit {
			return nil, errEntryTooLarge
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// streamEntry is one decompressed entry yielded by entryStream.
type streamEntry struct {
	File    *zip.File
	Data    []byte
	Running int64 // Total bytes decompressed so far, including this entry
}

// entryStream decompresses the entries of an archive one at a time,
// enforcing the per-entry, aggregate and ratio bounds as it goes.
type entryStream struct {
	files   []*zip.File
	limits  Limits
	pos     int
	running int64
}

func newEntryStream(files []*zip.File, limits Limits) *entryStream {
	return &entryStream{files: files, limits: limits}
}

// Next returns the next file entry. It returns io.EOF when the archive is
// exhausted. Directory entries are skipped.
func (s *entryStream) Next() (*streamEntry, error) {
	for s.pos < len(s.files) {
		f := s.files[s.pos]
		s.pos++
		if f.FileInfo().IsDir() {
			continue
		}

		data, err := readEntry(f, s.limits.entryCap(f.CompressedSize64, s.running))
		if err != nil {
			return nil, err
		}

		s.running += int64(len(data))
		return &streamEntry{File: f, Data: data, Running: s.running}, nil
	}
	return nil, io.EOF
}

// readEntry decompresses one entry, never producing more than
// min(limit, declared size) bytes. Content longer than the header declares
// is treated as oversized; shorter content or a CRC mismatch is corrupt.
func readEntry(f *zip.File, limit int64) ([]byte, error) {
	declared := declaredSize(f)
	if declared < limit {
		limit = declared
	}

	raw, err := f.OpenRaw()
	if err != nil {
		return nil, &streamError{name: f.Name, err: err}
	}
	var rc io.ReadCloser
	switch f.Method {
	case zip.Store:
		rc = io.NopCloser(raw)
	case zip.Deflate:
		rc = flate.NewReader(raw)
	default:
		return nil, &streamError{name: f.Name, err: zip.ErrAlgorithm}
	}
	defer rc.Close()

	data, err := readCapped(rc, limit, declared)
	if err != nil {
		return nil, &streamError{name: f.Name, err: err, limit: limit}
	}
	if int64(len(data)) != declared {
		return nil, &streamError{name: f.Name, err: fmt.Errorf("truncated: declared %d bytes, got %d", declared, len(data))}
	}
	if crc32.ChecksumIEEE(data) != f.CRC32 {
		return nil, &streamError{name: f.Name, err: zip.ErrChecksum}
	}
	return data, nil
}

// streamError records which entry failed and under which cap.
type streamError struct {
	name  string
	err   error
	limit int64
}

func (e *streamError) Error() string {
	if errors.Is(e.err, errEntryTooLarge) {
		return fmt.Sprintf("%s: decompressed past %d bytes", e.name, e.limit)
	}
	return fmt.Sprintf("%s: %v", e.name, e.err)
}

func (e *streamError) Unwrap() error {
	return e.err
}

// declaredSize returns the central directory's uncompressed size, clamped
// to int64.
func declaredSize(f *zip.File) int64 {
	if f.UncompressedSize64 > 1<<62 {
		return 1 << 62
	}
	return int64(f.UncompressedSize64)
}
