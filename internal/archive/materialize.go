package archive

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/ModuleVault/internal/fsutil"
)

// Package formats recognized by stream sniffing.
const (
	FormatZip    = "zip"
	FormatTar    = "tar"
	FormatTarGz  = "tar.gz"
	FormatTarZst = "tar.zst"
	FormatGzip   = "gzip"
	FormatZstd   = "zstd"
	FormatRaw    = "raw"
)

// sniffLen is how many leading bytes the detector may inspect. Covers the
// tar magic at offset 257.
const sniffLen = 3072

// materialize writes the install stream beneath dst, extracting recognized
// package formats and copying anything else verbatim. Detection reads the
// stream head, never a file name. Returns the detected format and the
// number of content bytes written.
func materialize(dst string, stream io.Reader, bufSize int) (string, int64, error) {
	if bufSize <= 0 {
		bufSize = fsutil.DefaultBufferSize
	}

	br := bufio.NewReaderSize(stream, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", 0, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
	}
	mtype := mimetype.Detect(head)

	switch {
	case mtype.Is("application/zip"):
		n, err := extractZip(dst, br, bufSize)
		return FormatZip, n, err

	case mtype.Is("application/x-tar"):
		n, err := extractTar(dst, br, bufSize)
		return FormatTar, n, err

	case mtype.Is("application/gzip"):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return "", 0, fmt.Errorf("%w: bad gzip stream: %v", fsutil.ErrCopy, err)
		}
		defer gz.Close()
		return extractCompressed(dst, gz, bufSize, FormatTarGz, FormatGzip)

	case mtype.Is("application/zstd"):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return "", 0, fmt.Errorf("%w: bad zstd stream: %v", fsutil.ErrCopy, err)
		}
		defer zr.Close()
		return extractCompressed(dst, zr.IOReadCloser(), bufSize, FormatTarZst, FormatZstd)

	default:
		n, err := copyRaw(dst, br, bufSize)
		return FormatRaw, n, err
	}
}

// extractCompressed re-sniffs the decompressed stream: a tar payload is
// extracted, anything else lands verbatim in the raw content file.
func extractCompressed(dst string, decompressed io.Reader, bufSize int, tarFormat, rawFormat string) (string, int64, error) {
	br := bufio.NewReaderSize(decompressed, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", 0, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
	}

	if mimetype.Detect(head).Is("application/x-tar") {
		n, err := extractTar(dst, br, bufSize)
		return tarFormat, n, err
	}
	n, err := copyRaw(dst, br, bufSize)
	return rawFormat, n, err
}

func copyRaw(dst string, r io.Reader, bufSize int) (int64, error) {
	target := filepath.Join(dst, RawFileName)
	if err := fsutil.CopyStream(target, r, bufSize); err != nil {
		return 0, err
	}
	info, err := os.Stat(target)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
	}
	return info.Size(), nil
}

func extractTar(dst string, r io.Reader, bufSize int) (int64, error) {
	tr := tar.NewReader(r)
	buf := make([]byte, bufSize)

	var written int64
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, fmt.Errorf("%w: reading tar stream: %v", fsutil.ErrCopy, err)
		}

		// Entries escaping the target directory are dropped.
		target, err := fsutil.SafeJoin(dst, header.Name)
		if err != nil {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return written, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return written, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
			}
			out, err := os.Create(target)
			if err != nil {
				return written, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
			}
			n, err := io.CopyBuffer(out, tr, buf)
			written += n
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return written, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
			}
		}
	}
	return written, nil
}

// extractZip stages the stream to a scratch file first; the zip directory
// lives at the end of the stream so extraction needs random access.
func extractZip(dst string, r io.Reader, bufSize int) (int64, error) {
	stage, err := os.CreateTemp(filepath.Dir(dst), "stage-*.zip")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
	}
	stagePath := stage.Name()
	defer os.Remove(stagePath)

	buf := make([]byte, bufSize)
	if _, err := io.CopyBuffer(stage, r, buf); err != nil {
		stage.Close()
		return 0, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
	}
	if err := stage.Close(); err != nil {
		return 0, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
	}

	reader, err := zip.OpenReader(stagePath)
	if err != nil {
		return 0, fmt.Errorf("%w: bad zip stream: %v", fsutil.ErrCopy, err)
	}
	defer reader.Close()

	var written int64
	for _, file := range reader.File {
		target, err := fsutil.SafeJoin(dst, file.Name)
		if err != nil {
			// Zip-slip entry, skip it.
			continue
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return written, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return written, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
		}

		src, err := file.Open()
		if err != nil {
			return written, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
		}
		out, err := os.Create(target)
		if err != nil {
			src.Close()
			return written, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
		}
		n, err := io.CopyBuffer(out, src, buf)
		written += n
		src.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return written, fmt.Errorf("%w: %v", fsutil.ErrCopy, err)
		}
	}
	return written, nil
}
