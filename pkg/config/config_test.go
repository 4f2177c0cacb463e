package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagecompat/pkg/view/mediastore"
)

const home = "/home/tester"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Options{Fs: afero.NewMemMapFs(), Home: home})
	require.NoError(t, err)

	assert.Equal(t, BackendFS, cfg.Backend)
	assert.Equal(t, ".", cfg.Root)
	assert.Equal(t, "/storage", cfg.VolumesDir)
	assert.Equal(t, mediastore.SQLite, cfg.MediaDriver)
	assert.Equal(t, mediastore.Image, cfg.MediaType)
	assert.Equal(t, filepath.Join(home, ".storagecompat"), cfg.StateDir)
	assert.Equal(t, filepath.Join(home, ".storagecompat", "media.db"), cfg.MediaDSN)
	assert.Equal(t, 30*time.Second, cfg.LockTimeout)
	assert.False(t, cfg.ReuseEmpty)
	assert.Empty(t, cfg.ConfigFile)
}

func TestLoad_HomeConfigFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	content := "backend: mediastore\nmedia_type: audio\nreuse_empty: true\nlock_timeout: 5s\nstate_dir: ~/state\n"
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(home, ".storagecompat.yaml"), []byte(content), 0o600))

	cfg, err := Load(Options{Fs: fsys, Home: home})
	require.NoError(t, err)

	assert.Equal(t, BackendMediaStore, cfg.Backend)
	assert.Equal(t, mediastore.Audio, cfg.MediaType)
	assert.True(t, cfg.ReuseEmpty)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, filepath.Join(home, ".storagecompat.yaml"), cfg.ConfigFile)
}

func TestLoad_ExplicitConfigFileMissing(t *testing.T) {
	_, err := Load(Options{Fs: afero.NewMemMapFs(), Home: home, ConfigFile: "/etc/nope.yaml"})
	require.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/cfg.yaml", []byte("backend: doctree\nroot: /from/file\n"), 0o600))
	t.Setenv("STORAGECOMPAT_ROOT", "/from/env")

	cfg, err := Load(Options{Fs: fsys, Home: home, ConfigFile: "/cfg.yaml"})
	require.NoError(t, err)

	assert.Equal(t, BackendDocTree, cfg.Backend)
	assert.Equal(t, "/from/env", cfg.Root)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("STORAGECOMPAT_BACKEND", "doctree")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("backend", "fs", "")
	flags.String("media-db", "", "")
	flags.String("root", ".", "")
	require.NoError(t, flags.Parse([]string{"--backend", "mediastore", "--media-db", ":memory:"}))

	cfg, err := Load(Options{Fs: afero.NewMemMapFs(), Home: home, Flags: flags})
	require.NoError(t, err)

	assert.Equal(t, BackendMediaStore, cfg.Backend)
	assert.Equal(t, ":memory:", cfg.MediaDSN)
	assert.Equal(t, ".", cfg.Root, "unchanged flag falls back to its default")
}

func TestLoad_DotEnv(t *testing.T) {
	const key = "STORAGECOMPAT_VOLUMES_DIR"
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/work/.env", []byte(key+"=/mnt/media_rw\n"), 0o600))

	cfg, err := Load(Options{Fs: fsys, Home: home, DotEnv: "/work/.env"})
	require.NoError(t, err)
	assert.Equal(t, "/mnt/media_rw", cfg.VolumesDir)
}

func TestLoad_DotEnvDoesNotOverrideEnv(t *testing.T) {
	t.Setenv("STORAGECOMPAT_VOLUMES_DIR", "/from/env")

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/work/.env", []byte("STORAGECOMPAT_VOLUMES_DIR=/from/dotenv\n"), 0o600))

	cfg, err := Load(Options{Fs: fsys, Home: home, DotEnv: "/work/.env"})
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.VolumesDir)
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	_, err := Load(Options{Fs: afero.NewMemMapFs(), Home: home, DotEnv: "/work/.env"})
	require.NoError(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "backend", content: "backend: ftp\n"},
		{name: "media type", content: "media_type: document\n"},
		{name: "driver", content: "media_driver: oracle\n"},
		{name: "lock timeout", content: "lock_timeout: -1s\n"},
		{name: "dsn for server driver", content: "backend: mediastore\nmedia_driver: postgres\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fsys, "/cfg.yaml", []byte(tt.content), 0o600))

			_, err := Load(Options{Fs: fsys, Home: home, ConfigFile: "/cfg.yaml"})
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
