package bundle

import (
	"archive/zip"
	"bytes"
	"hash/crc32"
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

// testEntry describes one entry of a hand-made archive.
type testEntry struct {
	name    string
	data    []byte
	method  uint16
	symlink bool

	// raw entries are written with CreateRaw using the sizes and CRC below,
	// so headers can lie about their content.
	raw          bool
	declared     uint64
	crc          uint32
	compressData bool
}

const testManifest = `{"version":"1.0","created_at":"2024-01-01T00:00:00Z","created_by":"alice","paper_count":1,"includes_summaries":false,"includes_annotations":false}`

const testRecord = `{"id":"2401.12345","title":"A Paper","authors":["A. Author"],"abstract":"Abstract.","collected_at":"2024-01-01T00:00:00Z","topics":["x"],"has_summary":false}`

func file(name, data string) testEntry {
	return testEntry{name: name, data: []byte(data), method: zip.Deflate}
}

// makeZip builds an archive from entries, in order.
func makeZip(t *testing.T, entries ...testEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, e := range entries {
		if e.raw {
			payload := e.data
			if e.compressData {
				payload = deflate(t, e.data)
			}
			hdr := &zip.FileHeader{
				Name:               e.name,
				Method:             e.method,
				CRC32:              e.crc,
				CompressedSize64:   uint64(len(payload)),
				UncompressedSize64: e.declared,
			}
			w, err := zw.CreateRaw(hdr)
			require.NoError(t, err)
			_, err = w.Write(payload)
			require.NoError(t, err)
			continue
		}

		hdr := &zip.FileHeader{Name: e.name, Method: e.method}
		if e.symlink {
			hdr.SetMode(fs.ModeSymlink | 0777)
		}
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = w.Write(e.data)
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// deflate compresses data the way a zip writer would.
func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "x", Method: zip.Deflate})
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	raw, err := zr.File[0].OpenRaw()
	require.NoError(t, err)
	out, err := io.ReadAll(raw)
	require.NoError(t, err)
	return out
}

func validate(t *testing.T, data []byte, limits Limits) (*Package, error) {
	t.Helper()
	return Validate(bytes.NewReader(data), int64(len(data)), limits)
}

func crcOf(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
