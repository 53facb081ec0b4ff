// Package archive implements the on-disk storage area for one installed
// module.
//
// A Store owns a single directory beneath the cache's profile directory.
// It is created in one of two ways: fresh from an install stream, which is
// sniffed and materialized under content/, or reconstructed from an
// existing directory during the cache's startup recovery scan, which reads
// only the persisted metadata file and never consumes a stream.
//
// Dispose removes the whole subtree; a disposed Store rejects further
// operations with ErrDisposed.
package archive
