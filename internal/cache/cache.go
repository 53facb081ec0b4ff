package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ModuleVault/internal/archive"
	"github.com/GriffinCanCode/ModuleVault/internal/config"
	"github.com/GriffinCanCode/ModuleVault/internal/fsutil"
	"github.com/GriffinCanCode/ModuleVault/internal/logging"
	"github.com/GriffinCanCode/ModuleVault/internal/monitoring"
)

const (
	// DirPrefix names archive directories inside the profile directory:
	// module1, module2, ... module0 is the system area.
	DirPrefix = "module"

	// SystemAreaID is reserved for the host's private storage area and
	// never appears in the archive collection.
	SystemAreaID = 0

	// DefaultCacheDirName is the cache directory created under the
	// user's home when none is configured.
	DefaultCacheDirName = ".modvault"
)

var (
	// ErrConfiguration marks fatal configuration problems: a missing
	// profile name, or one containing a path separator.
	ErrConfiguration = errors.New("invalid cache configuration")

	// ErrStorageInit marks failure to create the profile or system-area
	// directory.
	ErrStorageInit = errors.New("storage initialization failed")

	// ErrDuplicateID rejects a Create for an id already live.
	ErrDuplicateID = errors.New("archive id already in use")

	// ErrInvalidPath is re-exported so callers of SystemAreaFile can
	// match rejections without importing fsutil.
	ErrInvalidPath = fsutil.ErrInvalidPath
)

// Cache is the persistent module archive cache. All operations are
// serialized through one mutex; see the package documentation.
type Cache struct {
	mu         sync.Mutex
	log        *logging.Logger
	profileDir string
	bufSize    int
	archives   []*archive.Store // copy-on-write, never mutated in place
	metrics    *monitoring.Metrics

	// recovery outcome, reported when a collector is attached
	recovered int
	skipped   int
}

// New constructs a cache from a logger and an already-parsed flat
// configuration map, resolves and creates the profile directory, and runs
// the recovery scan. A nil logger disables logging.
func New(log *logging.Logger, props config.Properties) (*Cache, error) {
	if log == nil {
		log = logging.NewNop()
	}

	profileDir, err := resolveProfileDir(props)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(profileDir, 0755); err != nil {
		log.Error("unable to create profile directory",
			zap.String("dir", profileDir), zap.Error(err))
		return nil, fmt.Errorf("%w: cannot create %s: %v", ErrStorageInit, profileDir, err)
	}

	c := &Cache{
		log:        log,
		profileDir: profileDir,
		bufSize:    props.Int(config.KeyBufferSize, config.DefaultBufferSize),
	}
	c.recover()
	return c, nil
}

// WithMetrics attaches a metrics collector to the cache.
func (c *Cache) WithMetrics(m *monitoring.Metrics) *Cache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
	if m != nil {
		m.RecoveredTotal.Add(float64(c.recovered))
		m.RecoverySkips.Add(float64(c.skipped))
		m.ArchivesLive.Set(float64(len(c.archives)))
	}
	return c
}

// ProfileDir returns the resolved profile directory.
func (c *Cache) ProfileDir() string {
	return c.profileDir
}

// BufferSize returns the copy-buffer size this instance uses.
func (c *Cache) BufferSize() int {
	return c.bufSize
}

// Create installs a new archive from stream under the profile directory
// and appends it to the collection. The id must be positive and unused.
// Ownership of the stream transfers to the call. On any failure the
// partially created directory is rolled back and the collection is left
// unchanged.
func (c *Cache) Create(id int64, location string, stream io.Reader) (*archive.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Ownership of the stream is ours from here on; archive.New closes
	// it on the paths that reach it, these rejections close it here.
	closeStream := func() {
		if cl, ok := stream.(io.Closer); ok {
			cl.Close()
		}
	}

	if id <= 0 {
		closeStream()
		return nil, fmt.Errorf("archive id must be positive, got %d", id)
	}
	if stream == nil {
		return nil, fmt.Errorf("archive %d: install stream is nil", id)
	}
	if c.lookup(id) != nil {
		closeStream()
		return nil, fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}

	rootDir := filepath.Join(c.profileDir, archive.DirName(DirPrefix, id))

	start := time.Now()
	st, err := archive.New(c.log, rootDir, id, location, stream, c.bufSize)
	if err != nil {
		if _, statErr := os.Stat(rootDir); statErr == nil {
			if !fsutil.DeleteTree(rootDir) {
				// Deletion failure must not mask the creation error.
				c.log.Error("unable to delete archive directory after failed install",
					zap.String("dir", rootDir))
			}
		}
		if c.metrics != nil {
			c.metrics.InstallFailures.Inc()
		}
		return nil, err
	}

	tmp := make([]*archive.Store, len(c.archives)+1)
	copy(tmp, c.archives)
	tmp[len(c.archives)] = st
	c.archives = tmp

	if c.metrics != nil {
		c.metrics.InstallsTotal.Inc()
		c.metrics.BytesCopied.Add(float64(st.ContentBytes()))
		c.metrics.CopyDuration.Observe(time.Since(start).Seconds())
		c.metrics.ArchivesLive.Set(float64(len(c.archives)))
	}
	return st, nil
}

// Remove disposes the archive's storage and drops it from the collection,
// preserving the relative order of the rest. A nil or already-removed
// handle is a no-op. Disposal happens before index removal: a crash in
// between leaves a stale directory that the next recovery scan will fail
// to reconstruct and skip.
func (c *Cache) Remove(st *archive.Store) error {
	if st == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := st.Dispose(); err != nil && !errors.Is(err, archive.ErrDisposed) {
		return err
	}

	idx := c.index(st)
	if idx < 0 {
		return nil
	}

	tmp := make([]*archive.Store, 0, len(c.archives)-1)
	tmp = append(tmp, c.archives[:idx]...)
	tmp = append(tmp, c.archives[idx+1:]...)
	c.archives = tmp

	if c.metrics != nil {
		c.metrics.RemovalsTotal.Inc()
		c.metrics.ArchivesLive.Set(float64(len(c.archives)))
	}
	return nil
}

// Archives returns a snapshot of the current collection. The slice is
// never mutated after publication, so callers may iterate it freely.
func (c *Cache) Archives() []*archive.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.archives
}

// Archive returns the archive with the given id, or nil. Absence is a
// normal outcome, not an error.
func (c *Cache) Archive(id int64) *archive.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(id)
}

// ArchiveIndex returns the position of st in the collection, or -1. The
// comparison is by identity. Used for diagnostics, never for addressing.
func (c *Cache) ArchiveIndex(st *archive.Store) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index(st)
}

// SystemAreaFile resolves a relative path inside the host's private
// storage area (module0), creating that directory lazily. Absolute paths
// and paths containing ".." are rejected with ErrInvalidPath. The target
// file itself is not created.
func (c *Cache) SystemAreaFile(relPath string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sysDir := filepath.Join(c.profileDir, archive.DirName(DirPrefix, SystemAreaID))
	if err := os.MkdirAll(sysDir, 0755); err != nil {
		c.log.Error("unable to create system area directory",
			zap.String("dir", sysDir), zap.Error(err))
		return "", fmt.Errorf("%w: cannot create system area: %v", ErrStorageInit, err)
	}

	return fsutil.SafeJoin(sysDir, relPath)
}

// lookup finds an archive by id. Callers must hold c.mu.
func (c *Cache) lookup(id int64) *archive.Store {
	for _, st := range c.archives {
		if st.ID() == id {
			return st
		}
	}
	return nil
}

// index finds an archive by identity. Callers must hold c.mu.
func (c *Cache) index(st *archive.Store) int {
	for i, cur := range c.archives {
		if cur == st {
			return i
		}
	}
	return -1
}

// recover rebuilds the collection from archive directories already on
// disk. Reconstruction failures are logged and skipped so a corrupted
// module cannot block startup. The corrupt directory is left in place.
func (c *Cache) recover() {
	entries, err := os.ReadDir(c.profileDir)
	if err != nil {
		c.log.Error("unable to scan profile directory",
			zap.String("dir", c.profileDir), zap.Error(err))
		return
	}

	var recovered []*archive.Store
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, DirPrefix) {
			continue
		}
		id, err := strconv.ParseInt(name[len(DirPrefix):], 10, 64)
		if err != nil {
			// Matches the archive prefix but carries no id; treat it
			// like any other directory we cannot reconstruct.
			c.log.Error("error recreating archive, skipping",
				zap.String("dir", name), zap.Error(err))
			c.skipped++
			continue
		}
		if id == SystemAreaID {
			continue
		}

		st, err := archive.Reconstruct(c.log, filepath.Join(c.profileDir, name), id)
		if err != nil {
			c.log.Error("error recreating archive, skipping",
				zap.String("dir", name), zap.Error(err))
			c.skipped++
			continue
		}
		recovered = append(recovered, st)
	}

	// Directory listing order is filesystem-dependent; enumerate by id.
	sort.Slice(recovered, func(i, j int) bool { return recovered[i].ID() < recovered[j].ID() })
	c.archives = recovered
	c.recovered = len(recovered)

	if len(recovered) > 0 {
		c.log.Info("recovered archives from profile directory",
			zap.Int("count", len(recovered)), zap.String("dir", c.profileDir))
	}
}

// resolveProfileDir applies the configuration resolution order: an
// explicit profile directory wins; otherwise the cache directory (default
// ~/.modvault) is combined with the required profile name.
func resolveProfileDir(props config.Properties) (string, error) {
	if props.Has(config.KeyProfileDir) {
		return props.Get(config.KeyProfileDir), nil
	}

	cacheDir := props.Get(config.KeyCacheDir)
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("%w: cannot determine home directory: %v", ErrConfiguration, err)
		}
		cacheDir = filepath.Join(home, DefaultCacheDirName)
	}

	profile := props.Get(config.KeyProfile)
	if profile == "" {
		return "", fmt.Errorf("%w: no profile name or directory has been specified", ErrConfiguration)
	}
	if strings.ContainsRune(profile, os.PathSeparator) || strings.ContainsRune(profile, '/') {
		return "", fmt.Errorf("%w: profile name %q cannot contain a path separator", ErrConfiguration, profile)
	}

	return filepath.Join(cacheDir, profile), nil
}
