package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/ModuleVault/internal/logging"
)

const testBufSize = 4096

func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func zstded(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zipball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestNewFromRawStream(t *testing.T) {
	root := filepath.Join(t.TempDir(), "module7")

	st, err := New(logging.NewNop(), root, 7, "file:/mods/seven", bytes.NewReader([]byte("opaque payload")), testBufSize)
	require.NoError(t, err)

	assert.Equal(t, int64(7), st.ID())
	assert.Equal(t, "file:/mods/seven", st.Location())
	assert.Equal(t, FormatRaw, st.Format())
	assert.Equal(t, int64(len("opaque payload")), st.ContentBytes())

	data, err := os.ReadFile(filepath.Join(root, ContentName, RawFileName))
	require.NoError(t, err)
	assert.Equal(t, "opaque payload", string(data))
}

func TestNewFromTarGzStream(t *testing.T) {
	root := filepath.Join(t.TempDir(), "module3")
	pkg := gzipped(t, tarball(t, map[string]string{
		"manifest.yaml": "name: demo",
		"lib/mod.so":    "binary-ish",
	}))

	st, err := New(logging.NewNop(), root, 3, "http://mods/demo.tgz", bytes.NewReader(pkg), testBufSize)
	require.NoError(t, err)
	assert.Equal(t, FormatTarGz, st.Format())

	data, err := os.ReadFile(filepath.Join(root, ContentName, "manifest.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "name: demo", string(data))

	_, err = os.Stat(filepath.Join(root, ContentName, "lib", "mod.so"))
	assert.NoError(t, err)
}

func TestNewFromPlainTarStream(t *testing.T) {
	root := filepath.Join(t.TempDir(), "module12")
	pkg := tarball(t, map[string]string{
		"manifest.yaml": "name: plain",
		"bin/run":       "#!/bin/sh",
	})

	st, err := New(logging.NewNop(), root, 12, "file:/mods/plain.tar", bytes.NewReader(pkg), testBufSize)
	require.NoError(t, err)
	assert.Equal(t, FormatTar, st.Format())

	data, err := os.ReadFile(filepath.Join(root, ContentName, "manifest.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "name: plain", string(data))

	_, err = os.Stat(filepath.Join(root, ContentName, "bin", "run"))
	assert.NoError(t, err)
}

func TestNewFromTarZstStream(t *testing.T) {
	root := filepath.Join(t.TempDir(), "module13")
	pkg := zstded(t, tarball(t, map[string]string{
		"manifest.yaml": "name: zstd",
		"lib/mod.so":    "binary-ish",
	}))

	st, err := New(logging.NewNop(), root, 13, "http://mods/demo.tar.zst", bytes.NewReader(pkg), testBufSize)
	require.NoError(t, err)
	assert.Equal(t, FormatTarZst, st.Format())

	data, err := os.ReadFile(filepath.Join(root, ContentName, "manifest.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "name: zstd", string(data))

	_, err = os.Stat(filepath.Join(root, ContentName, "lib", "mod.so"))
	assert.NoError(t, err)
}

func TestNewFromZipStream(t *testing.T) {
	root := filepath.Join(t.TempDir(), "module4")
	pkg := zipball(t, map[string]string{"module.cfg": "enabled=true"})

	st, err := New(logging.NewNop(), root, 4, "zip-loc", bytes.NewReader(pkg), testBufSize)
	require.NoError(t, err)
	assert.Equal(t, FormatZip, st.Format())

	data, err := os.ReadFile(filepath.Join(root, ContentName, "module.cfg"))
	require.NoError(t, err)
	assert.Equal(t, "enabled=true", string(data))

	// The zip staging file must not survive materialization.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "stage-")
	}
}

func TestNewSkipsEscapingEntries(t *testing.T) {
	root := filepath.Join(t.TempDir(), "module5")
	pkg := tarball(t, map[string]string{
		"../evil.sh": "#!/bin/sh",
		"ok.txt":     "fine",
	})

	_, err := New(logging.NewNop(), root, 5, "slippy", bytes.NewReader(pkg), testBufSize)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, ContentName, "ok.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(filepath.Dir(root), "evil.sh"))
	assert.True(t, os.IsNotExist(err), "escaping entry must not be written")
}

func TestNewClosesStream(t *testing.T) {
	root := filepath.Join(t.TempDir(), "module8")
	src := &closeRecorder{Reader: bytes.NewReader([]byte("payload"))}

	_, err := New(logging.NewNop(), root, 8, "loc", src, testBufSize)
	require.NoError(t, err)
	assert.True(t, src.closed)
}

func TestReconstructRoundTrip(t *testing.T) {
	root := filepath.Join(t.TempDir(), "module9")
	created, err := New(logging.NewNop(), root, 9, "file:/mods/nine", bytes.NewReader([]byte("data")), testBufSize)
	require.NoError(t, err)

	restored, err := Reconstruct(logging.NewNop(), root, 9)
	require.NoError(t, err)

	assert.Equal(t, created.ID(), restored.ID())
	assert.Equal(t, created.Location(), restored.Location())
	assert.Equal(t, created.Format(), restored.Format())
	assert.Equal(t, root, restored.RootDir())
}

func TestReconstructMissingMetadata(t *testing.T) {
	root := filepath.Join(t.TempDir(), "module2")
	require.NoError(t, os.MkdirAll(root, 0755))

	_, err := Reconstruct(logging.NewNop(), root, 2)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReconstructCorruptMetadata(t *testing.T) {
	root := filepath.Join(t.TempDir(), "module2")
	require.NoError(t, os.MkdirAll(root, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, MetadataFile), []byte("{nope"), 0644))

	_, err := Reconstruct(logging.NewNop(), root, 2)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReconstructIDMismatch(t *testing.T) {
	root := filepath.Join(t.TempDir(), "module6")
	_, err := New(logging.NewNop(), root, 6, "loc", bytes.NewReader([]byte("x")), testBufSize)
	require.NoError(t, err)

	_, err = Reconstruct(logging.NewNop(), root, 60)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDispose(t *testing.T) {
	root := filepath.Join(t.TempDir(), "module1")
	st, err := New(logging.NewNop(), root, 1, "loc", bytes.NewReader([]byte("x")), testBufSize)
	require.NoError(t, err)

	require.NoError(t, st.Dispose())
	_, statErr := os.Stat(root)
	assert.True(t, os.IsNotExist(statErr))
	assert.True(t, st.Disposed())

	assert.ErrorIs(t, st.Dispose(), ErrDisposed)
	_, sizeErr := st.Size()
	assert.ErrorIs(t, sizeErr, ErrDisposed)
}

func TestSize(t *testing.T) {
	root := filepath.Join(t.TempDir(), "module11")
	pkg := tarball(t, map[string]string{
		"a.txt":     "12345",
		"sub/b.txt": "123",
	})

	st, err := New(logging.NewNop(), root, 11, "loc", bytes.NewReader(pkg), testBufSize)
	require.NoError(t, err)

	size, err := st.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)
}

type closeRecorder struct {
	*bytes.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}
