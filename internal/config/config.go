// Package config provides the configuration schema and loader for the
// Otoforge voicebank assembly service.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StorageBackend selects the durable blob store implementation.
type StorageBackend string

const (
	// BackendFS stores blobs as files under storage.root_dir.
	BackendFS StorageBackend = "fs"

	// BackendPostgres stores blobs in a PostgreSQL table.
	BackendPostgres StorageBackend = "postgres"
)

// IsValid reports whether b is a recognised storage backend.
func (b StorageBackend) IsValid() bool {
	return b == BackendFS || b == BackendPostgres
}

// Config is the root configuration structure for Otoforge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Audio    AudioConfig    `yaml:"audio"`
	Aligner  AlignerConfig  `yaml:"aligner"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`
}

// StorageConfig selects and parameterises the blob store backend.
type StorageConfig struct {
	// Backend selects the implementation: "fs" or "postgres". Default: fs.
	Backend StorageBackend `yaml:"backend"`

	// RootDir is the blob root for the fs backend. Default: "./data".
	RootDir string `yaml:"root_dir"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// AudioConfig holds audio processing settings.
type AudioConfig struct {
	// TargetSampleRate is the rate sample slices are resampled to.
	// Default: 44100.
	TargetSampleRate int `yaml:"target_sample_rate"`
}

// AlignerConfig selects the forced-alignment collaborator.
type AlignerConfig struct {
	// Name selects the aligner: "http" or "none". Default: none (estimation
	// degrades to default parameters).
	Name string `yaml:"name"`

	// BaseURL is the alignment service address for the http aligner.
	BaseURL string `yaml:"base_url"`

	// TimeoutSeconds is the per-request timeout for the http aligner.
	// Default: 120.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Language is the language code passed to the aligner (e.g. "ja").
	Language string `yaml:"language"`
}

// PipelineConfig tunes the assembly batch.
type PipelineConfig struct {
	// MaxConcurrentTakes bounds take-level parallelism. Default: 4.
	MaxConcurrentTakes int `yaml:"max_concurrent_takes"`

	// LockMapSize bounds the per-resource lock map. Default: 256.
	LockMapSize int `yaml:"lock_map_size"`
}
