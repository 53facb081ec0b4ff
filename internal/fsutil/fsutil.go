package fsutil

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultBufferSize is used by CopyStream when the caller passes a
// non-positive buffer size.
const DefaultBufferSize = 4096

var (
	// ErrCopy wraps I/O failures while materializing a stream on disk.
	ErrCopy = errors.New("stream copy failed")

	// ErrInvalidPath marks absolute or parent-escaping relative paths.
	ErrInvalidPath = errors.New("invalid path")
)

// CopyStream copies src into the file at dst using a buffer of bufSize
// bytes. The destination file is created (truncated if present) and both
// ends are released on every path; when src implements io.Closer it is
// closed even on failure. Failures are wrapped in ErrCopy.
func CopyStream(dst string, src io.Reader, bufSize int) (err error) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	defer func() {
		if c, ok := src.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("%w: closing source: %v", ErrCopy, cerr)
			}
		}
	}()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}

	w := bufio.NewWriterSize(out, bufSize)
	buf := make([]byte, bufSize)
	if _, err = io.CopyBuffer(w, src, buf); err != nil {
		out.Close()
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	if err = w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	return nil
}

// DeleteTree removes path and everything beneath it, children before
// parents. A missing target counts as success so cleanup callers can
// retry freely. The boolean result replaces an error because every
// caller treats deletion as best-effort.
func DeleteTree(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return os.IsNotExist(err)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return false
		}
		// Deterministic order keeps failure logs stable.
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, entry := range entries {
			if !DeleteTree(filepath.Join(path, entry.Name())) {
				return false
			}
		}
	}

	return os.Remove(path) == nil
}

// SafeJoin joins rel beneath root, rejecting inputs that could escape it.
// A rel that starts with a separator or contains ".." anywhere fails with
// ErrInvalidPath. An empty rel is rejected too: handing out the root
// itself would let callers treat the whole area as a file path, so they
// must name something inside it. The returned path is not created.
func SafeJoin(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if rel[0] == os.PathSeparator || rel[0] == '/' {
		return "", fmt.Errorf("%w: %q must be relative, not absolute", ErrInvalidPath, rel)
	}
	// Any ".." occurrence is rejected outright, even inside a name
	// like "a..b"; callers of the system area are not trusted enough
	// to warrant a finer-grained parse.
	if strings.Contains(rel, "..") {
		return "", fmt.Errorf("%w: %q contains a parent directory reference", ErrInvalidPath, rel)
	}

	joined := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(joined, filepath.Clean(root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q escapes %q", ErrInvalidPath, rel, root)
	}
	return joined, nil
}
