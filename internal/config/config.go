package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional gitchunk configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds persistent flag defaults. Values set on the
// command line always win; nil fields fall back to built-ins.
type DefaultsConfig struct {
	Branch    *string  `toml:"branch"`
	MaxSize   *string  `toml:"max_size"`   // human size, e.g. "25M"
	ChunkSize *string  `toml:"chunk_size"` // human size, e.g. "20M"
	BatchSize *int     `toml:"batch_size"`
	NoSplit   *bool    `toml:"no_split"`
	Ignore    []string `toml:"ignore"` // extra patterns, appended to defaults
	LogFile   *string  `toml:"log_file"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "gitchunk", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads a config file from an explicit path.
func LoadFrom(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}
