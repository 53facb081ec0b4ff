// Package cache implements the persistent module archive cache: a
// directory-backed registry tracking every installed module's storage
// area under one profile directory.
//
// The cache owns three things: the profile directory resolved once at
// construction, the copy-buffer size for install streams, and the ordered
// in-memory collection of archive stores. On startup it recovers the
// collection by scanning the profile directory; a corrupted archive
// directory is logged and skipped so one bad module never blocks the host
// from starting.
//
// Every operation is serialized through a single per-instance mutex. The
// collection is swapped copy-on-write, so the slice returned by Archives
// is a stable snapshot that later mutations never tear.
package cache
