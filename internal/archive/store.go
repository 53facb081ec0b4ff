package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ModuleVault/internal/fsutil"
	"github.com/GriffinCanCode/ModuleVault/internal/logging"
)

const (
	// MetadataFile holds the persisted store identity inside the root
	// directory.
	MetadataFile = "store.json"

	// ContentName is the subdirectory the install stream materializes
	// into.
	ContentName = "content"

	// RawFileName receives streams that are not a recognized package
	// format.
	RawFileName = "module.bin"
)

var (
	// ErrDisposed is returned by operations on a Store whose directory
	// has been removed.
	ErrDisposed = errors.New("archive store is disposed")

	// ErrCorrupt marks a directory that cannot be reconstructed into a
	// Store.
	ErrCorrupt = errors.New("archive store is corrupt")
)

// metadata is the JSON document persisted as store.json. Recovery depends
// on it: a directory without a readable metadata file is treated as
// corrupt and skipped.
type metadata struct {
	ID          int64     `json:"id"`
	Location    string    `json:"location"`
	Format      string    `json:"format"`
	InstalledAt time.Time `json:"installed_at"`
}

// Store is one module's on-disk storage area.
type Store struct {
	id          int64
	location    string
	rootDir     string
	format      string
	installedAt time.Time
	written     int64
	log         *logging.Logger
	disposed    atomic.Bool
}

// New creates a fresh Store rooted at rootDir, materializing stream
// beneath it with copies buffered at bufSize bytes. Ownership of the
// stream transfers here: when it implements io.Closer it is closed on
// every path. On failure the partially written directory is left for the
// caller to roll back.
func New(log *logging.Logger, rootDir string, id int64, location string, stream io.Reader, bufSize int) (*Store, error) {
	if log == nil {
		log = logging.NewNop()
	}
	defer func() {
		if c, ok := stream.(io.Closer); ok {
			c.Close()
		}
	}()

	if err := os.MkdirAll(filepath.Join(rootDir, ContentName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %s: %w", rootDir, err)
	}

	format, written, err := materialize(filepath.Join(rootDir, ContentName), stream, bufSize)
	if err != nil {
		return nil, err
	}

	s := &Store{
		id:          id,
		location:    location,
		rootDir:     rootDir,
		format:      format,
		installedAt: time.Now().UTC(),
		written:     written,
		log:         log,
	}
	if err := s.writeMetadata(); err != nil {
		return nil, err
	}

	log.Info("archive materialized",
		zap.Int64("id", id),
		zap.String("location", location),
		zap.String("format", format),
	)
	return s, nil
}

// Reconstruct rebuilds a Store from an existing directory found during
// recovery. Only the metadata file is read; no stream is consumed. The id
// parsed from the directory name must match the persisted one.
func Reconstruct(log *logging.Logger, rootDir string, id int64) (*Store, error) {
	if log == nil {
		log = logging.NewNop()
	}

	data, err := os.ReadFile(filepath.Join(rootDir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var meta metadata
	if err := sonic.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: unreadable metadata: %v", ErrCorrupt, err)
	}
	if meta.ID != id {
		return nil, fmt.Errorf("%w: directory %s holds archive %d", ErrCorrupt, filepath.Base(rootDir), meta.ID)
	}
	if meta.Location == "" {
		return nil, fmt.Errorf("%w: missing location", ErrCorrupt)
	}

	return &Store{
		id:          meta.ID,
		location:    meta.Location,
		rootDir:     rootDir,
		format:      meta.Format,
		installedAt: meta.InstalledAt,
		log:         log,
	}, nil
}

// ID returns the archive identifier.
func (s *Store) ID() int64 { return s.id }

// Location returns the opaque location string supplied at creation.
func (s *Store) Location() string { return s.location }

// RootDir returns the directory holding this archive's content.
func (s *Store) RootDir() string { return s.rootDir }

// Format reports the package format detected at install time.
func (s *Store) Format() string { return s.format }

// InstalledAt reports when the archive was first materialized.
func (s *Store) InstalledAt() time.Time { return s.installedAt }

// ContentDir returns the directory the install stream materialized into.
func (s *Store) ContentDir() string { return filepath.Join(s.rootDir, ContentName) }

// ContentBytes reports how many bytes the install stream materialized.
// Zero for reconstructed stores; use Size for the on-disk truth.
func (s *Store) ContentBytes() int64 { return s.written }

// Size walks the content directory and sums file sizes.
func (s *Store) Size() (int64, error) {
	if s.disposed.Load() {
		return 0, ErrDisposed
	}

	var total int64
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, s.ContentDir(), func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		atomic.AddInt64(&total, info.Size())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to size archive %d: %w", s.id, err)
	}
	return atomic.LoadInt64(&total), nil
}

// Dispose removes the archive's directory subtree. The handle is unusable
// afterwards; a second Dispose returns ErrDisposed.
func (s *Store) Dispose() error {
	if !s.disposed.CompareAndSwap(false, true) {
		return ErrDisposed
	}
	if !fsutil.DeleteTree(s.rootDir) {
		// Roll the flag back so the caller can retry the deletion.
		s.disposed.Store(false)
		return fmt.Errorf("unable to delete archive directory %s", s.rootDir)
	}
	s.log.Info("archive disposed", zap.Int64("id", s.id))
	return nil
}

// Disposed reports whether Dispose has completed.
func (s *Store) Disposed() bool {
	return s.disposed.Load()
}

func (s *Store) writeMetadata() error {
	meta := metadata{
		ID:          s.id,
		Location:    s.location,
		Format:      s.format,
		InstalledAt: s.installedAt,
	}
	data, err := sonic.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal archive metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.rootDir, MetadataFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write archive metadata: %w", err)
	}
	return nil
}

// DirName returns the canonical directory name for an archive id.
func DirName(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}
