package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate when fields are unset.
const (
	DefaultRootDir            = "./data"
	DefaultTargetSampleRate   = 44100
	DefaultAlignTimeoutSecs   = 120
	DefaultMaxConcurrentTakes = 4
	DefaultLockMapSize        = 256
)

// validAlignerNames lists known aligner collaborator names.
var validAlignerNames = []string{"http", "none", ""}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults. It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Storage
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendFS
	}
	if !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: fs, postgres", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == BackendFS && cfg.Storage.RootDir == "" {
		cfg.Storage.RootDir = DefaultRootDir
	}
	if cfg.Storage.Backend == BackendPostgres && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
	}

	// Audio
	if cfg.Audio.TargetSampleRate == 0 {
		cfg.Audio.TargetSampleRate = DefaultTargetSampleRate
	}
	if cfg.Audio.TargetSampleRate < 8000 || cfg.Audio.TargetSampleRate > 192000 {
		errs = append(errs, fmt.Errorf("audio.target_sample_rate %d out of range [8000, 192000]", cfg.Audio.TargetSampleRate))
	}

	// Aligner
	if !slices.Contains(validAlignerNames, cfg.Aligner.Name) {
		errs = append(errs, fmt.Errorf("aligner.name %q is invalid; valid values: http, none", cfg.Aligner.Name))
	}
	if cfg.Aligner.Name == "http" && cfg.Aligner.BaseURL == "" {
		errs = append(errs, errors.New("aligner.base_url is required for the http aligner"))
	}
	if cfg.Aligner.TimeoutSeconds == 0 {
		cfg.Aligner.TimeoutSeconds = DefaultAlignTimeoutSecs
	}
	if cfg.Aligner.Name == "" || cfg.Aligner.Name == "none" {
		slog.Warn("no aligner configured; parameter estimation will fall back to default values")
	}

	// Pipeline
	if cfg.Pipeline.MaxConcurrentTakes == 0 {
		cfg.Pipeline.MaxConcurrentTakes = DefaultMaxConcurrentTakes
	}
	if cfg.Pipeline.MaxConcurrentTakes < 1 {
		errs = append(errs, fmt.Errorf("pipeline.max_concurrent_takes %d must be at least 1", cfg.Pipeline.MaxConcurrentTakes))
	}
	if cfg.Pipeline.LockMapSize == 0 {
		cfg.Pipeline.LockMapSize = DefaultLockMapSize
	}
	if cfg.Pipeline.LockMapSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.lock_map_size %d must be at least 1", cfg.Pipeline.LockMapSize))
	}

	return errors.Join(errs...)
}
