// Package config loads settings from a YAML file, a .env file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"storagecompat/pkg/metadata"
	"storagecompat/pkg/view/mediastore"
)

// EnvPrefix prefixes every environment variable, e.g. STORAGECOMPAT_BACKEND.
const EnvPrefix = "STORAGECOMPAT"

// Backend names.
const (
	BackendFS         = "fs"
	BackendDocTree    = "doctree"
	BackendMediaStore = "mediastore"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the resolved settings.
type Config struct {
	Backend     string
	Root        string // fs root, and primary storage for doctree
	VolumesDir  string // removable volumes for doctree
	MediaDriver mediastore.Driver
	MediaDSN    string
	MediaType   mediastore.MediaType
	MediaOwner  string
	StateDir    string
	ReuseEmpty  bool
	LockTimeout time.Duration
	// ConfigFile is the file settings were read from, empty when none.
	ConfigFile string
}

// Options controls where Load looks.
type Options struct {
	Fs afero.Fs
	// ConfigFile is an explicit config path. It must exist.
	ConfigFile string
	// Home overrides the home directory lookup.
	Home string
	// DotEnv is the .env path; empty skips it.
	DotEnv string
	// Flags are bound over file and environment values when set.
	Flags *pflag.FlagSet
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"backend":      "backend",
	"root":         "root",
	"volumes":      "volumes_dir",
	"media-driver": "media_driver",
	"media-db":     "media_dsn",
	"media-type":   "media_type",
	"state-dir":    "state_dir",
	"reuse-empty":  "reuse_empty",
}

// Load reads the configuration.
func Load(opts Options) (*Config, error) {
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	home := opts.Home
	if home == "" {
		h, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}
		home = h
	}

	if opts.DotEnv != "" {
		if err := loadDotEnv(fsys, opts.DotEnv); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetFs(fsys)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	stateDir := filepath.Join(home, metadata.DirName)
	v.SetDefault("backend", BackendFS)
	v.SetDefault("root", ".")
	v.SetDefault("volumes_dir", "/storage")
	v.SetDefault("media_driver", string(mediastore.SQLite))
	v.SetDefault("media_type", string(mediastore.Image))
	v.SetDefault("media_owner", "storagecompat")
	v.SetDefault("state_dir", stateDir)
	v.SetDefault("reuse_empty", false)
	v.SetDefault("lock_timeout", 30*time.Second)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(".storagecompat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "storagecompat"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	expand := func(key string) (string, error) {
		p, err := homedir.Expand(v.GetString(key))
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
		}
		return p, nil
	}

	cfg := &Config{
		Backend:     strings.ToLower(v.GetString("backend")),
		MediaOwner:  v.GetString("media_owner"),
		ReuseEmpty:  v.GetBool("reuse_empty"),
		LockTimeout: v.GetDuration("lock_timeout"),
		ConfigFile:  v.ConfigFileUsed(),
	}

	var err error
	if cfg.Root, err = expand("root"); err != nil {
		return nil, err
	}
	if cfg.VolumesDir, err = expand("volumes_dir"); err != nil {
		return nil, err
	}
	if cfg.StateDir, err = expand("state_dir"); err != nil {
		return nil, err
	}
	if cfg.MediaDSN, err = expand("media_dsn"); err != nil {
		return nil, err
	}

	if cfg.MediaDriver, err = mediastore.ParseDriver(v.GetString("media_driver")); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.MediaType, err = mediastore.ParseMediaType(v.GetString("media_type")); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.MediaDSN == "" && cfg.MediaDriver == mediastore.SQLite {
		cfg.MediaDSN = filepath.Join(cfg.StateDir, "media.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFS, BackendDocTree, BackendMediaStore:
	default:
		return fmt.Errorf("%w: unknown backend %q (want fs, doctree or mediastore)", ErrInvalidConfig, c.Backend)
	}

	if c.Backend == BackendMediaStore && c.MediaDSN == "" {
		return fmt.Errorf("%w: media_dsn is required for the %s driver", ErrInvalidConfig, c.MediaDriver)
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("%w: negative lock_timeout", ErrInvalidConfig)
	}

	return nil
}

// loadDotEnv sets variables from path that are not already set, like
// godotenv.Load, reading through fsys. A missing file is ignored.
func loadDotEnv(fsys afero.Fs, path string) error {
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	for key, value := range vars {
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}

	return nil
}
