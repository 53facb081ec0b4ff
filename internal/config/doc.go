// Package config manages vault configuration as a flat, string-keyed
// property map.
//
// The cache itself only ever sees Properties: an already-parsed map with
// typed getters that fall back to defaults on bad values. How the map is
// filled is the caller's business; this package offers two loaders:
//
//   - FromEnv reads MODVAULT_* environment variables.
//   - FromFile reads a .yaml/.yml or .toml properties file.
//
// Canonical Keys:
//   - cache.bufsize    copy-buffer size in bytes (default 4096)
//   - cache.dir        cache directory (default ~/.modvault)
//   - cache.profile    profile name, must not contain a path separator
//   - cache.profiledir profile directory; overrides the two above
package config
