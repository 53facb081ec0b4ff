package config

import "strconv"

// Configuration keys consumed by the cache.
const (
	KeyBufferSize = "cache.bufsize"
	KeyCacheDir   = "cache.dir"
	KeyProfile    = "cache.profile"
	KeyProfileDir = "cache.profiledir"
)

// DefaultBufferSize is the copy-buffer size used when cache.bufsize is
// absent or unparseable.
const DefaultBufferSize = 4096

// Properties is a flat string-keyed configuration map.
type Properties map[string]string

// Get returns the raw value for key, or "" when absent.
func (p Properties) Get(key string) string {
	return p[key]
}

// Has reports whether key is present, even with an empty value.
func (p Properties) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Int returns the value for key parsed as an integer. Absent or
// unparseable values silently fall back to def.
func (p Properties) Int(key string, def int) int {
	raw, ok := p[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Clone returns an independent copy so a caller's later edits cannot
// affect a cache constructed from the map.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
