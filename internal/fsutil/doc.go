// Package fsutil provides the low-level filesystem primitives the vault is
// built on: buffered stream-to-file copying, post-order tree deletion, and
// traversal-safe path joining.
//
// DeleteTree deliberately reports a boolean instead of an error: it only
// ever runs in best-effort cleanup paths where the caller logs and moves on.
package fsutil
