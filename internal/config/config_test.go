package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertiesInt(t *testing.T) {
	props := Properties{
		KeyBufferSize: "8192",
		"bad":         "not-a-number",
		"negative":    "-4",
	}

	assert.Equal(t, 8192, props.Int(KeyBufferSize, DefaultBufferSize))
	assert.Equal(t, DefaultBufferSize, props.Int("bad", DefaultBufferSize))
	assert.Equal(t, DefaultBufferSize, props.Int("negative", DefaultBufferSize))
	assert.Equal(t, DefaultBufferSize, props.Int("absent", DefaultBufferSize))
}

func TestPropertiesHas(t *testing.T) {
	props := Properties{KeyProfileDir: ""}
	assert.True(t, props.Has(KeyProfileDir))
	assert.False(t, props.Has(KeyProfile))
}

func TestPropertiesClone(t *testing.T) {
	orig := Properties{KeyProfile: "default"}
	clone := orig.Clone()
	clone[KeyProfile] = "other"
	assert.Equal(t, "default", orig.Get(KeyProfile))
}

func TestFromEnv(t *testing.T) {
	t.Setenv("MODVAULT_CACHE_PROFILE", "staging")
	t.Setenv("MODVAULT_CACHE_BUFSIZE", "16384")

	props, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "staging", props.Get(KeyProfile))
	assert.Equal(t, 16384, props.Int(KeyBufferSize, DefaultBufferSize))
	assert.False(t, props.Has(KeyProfileDir))
}

func TestFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  profile: prod\n  bufsize: 2048\n"), 0644))

	props, err := FromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", props.Get(KeyProfile))
	assert.Equal(t, 2048, props.Int(KeyBufferSize, DefaultBufferSize))
}

func TestFromFileTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.toml")
	require.NoError(t, os.WriteFile(path, []byte("[cache]\nprofiledir = \"/data/vault\"\n"), 0644))

	props, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/vault", props.Get(KeyProfileDir))
}

func TestFromFileUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0644))

	_, err := FromFile(path)
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	base := Properties{KeyProfile: "default", KeyCacheDir: "/base"}
	over := Properties{KeyProfile: "override"}

	merged := Merge(base, over)
	assert.Equal(t, "override", merged.Get(KeyProfile))
	assert.Equal(t, "/base", merged.Get(KeyCacheDir))
	// Inputs stay untouched.
	assert.Equal(t, "default", base.Get(KeyProfile))
}
