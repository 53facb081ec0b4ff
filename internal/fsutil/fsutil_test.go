package fsutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackedCloser struct {
	io.Reader
	closed bool
}

func (t *trackedCloser) Close() error {
	t.closed = true
	return nil
}

type failReader struct {
	data []byte
	read bool
}

func (f *failReader) Read(p []byte) (int, error) {
	if !f.read {
		f.read = true
		return copy(p, f.data), nil
	}
	return 0, errors.New("disk on fire")
}

func TestCopyStream(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.bin")
	src := &trackedCloser{Reader: strings.NewReader("module payload")}

	require.NoError(t, CopyStream(dst, src, 8))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "module payload", string(data))
	assert.True(t, src.closed, "source must be closed on success")
}

func TestCopyStreamDefaultBuffer(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, CopyStream(dst, strings.NewReader("x"), 0))
}

func TestCopyStreamFailure(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.bin")
	src := &trackedCloser{Reader: &failReader{data: []byte("partial")}}

	err := CopyStream(dst, src, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCopy)
	assert.True(t, src.closed, "source must be closed on failure")
}

func TestDeleteTreeIdempotent(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "f.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("y"), 0644))

	assert.True(t, DeleteTree(root))
	_, err := os.Stat(root)
	assert.True(t, os.IsNotExist(err))

	// Second call on the same path is still a success.
	assert.True(t, DeleteTree(root))
}

func TestDeleteTreeSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	assert.True(t, DeleteTree(path))
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	got, err := SafeJoin(root, "data/settings.cfg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "data", "settings.cfg"), got)

	for _, rel := range []string{"", "/etc/passwd", "../etc/passwd", "a/../../b", "a..b"} {
		_, err := SafeJoin(root, rel)
		assert.ErrorIs(t, err, ErrInvalidPath, "rel=%q", rel)
	}
}
