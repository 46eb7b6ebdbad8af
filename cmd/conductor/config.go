package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds CLI configuration, loaded from an optional YAML file and
// overridden by flags.
type Config struct {
	// StateDir is the root directory for the file-backed store.
	StateDir string `yaml:"state_dir"`
	// Backend selects the session store: "file" (default) or "redis".
	Backend string `yaml:"backend"`
	// RedisAddr is the Redis address when Backend is "redis".
	RedisAddr string `yaml:"redis_addr"`
}

const (
	backendFile  = "file"
	backendRedis = "redis"
)

// defaultConfig returns the built-in defaults, rooted in the user home
// directory when resolvable.
func defaultConfig() Config {
	cfg := Config{Backend: backendFile, RedisAddr: "localhost:6379"}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.StateDir = filepath.Join(home, ".conductor")
	} else {
		cfg.StateDir = ".conductor"
	}
	return cfg
}

// loadConfig reads the YAML config file when present and merges it over the
// defaults. A missing file is not an error; a malformed one is.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = filepath.Join(cfg.StateDir, "config.yaml")
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Backend == "" {
		cfg.Backend = backendFile
	}
	return cfg, nil
}
