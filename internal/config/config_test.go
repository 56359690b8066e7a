package config_test

import (
	"strings"
	"testing"

	"github.com/kazenokoe/otoforge/internal/config"
)

func TestLoadFromReaderValid(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  log_level: debug
storage:
  backend: fs
  root_dir: /tmp/otoforge-data
audio:
  target_sample_rate: 48000
aligner:
  name: http
  base_url: http://localhost:8080
  timeout_seconds: 30
  language: ja
pipeline:
  max_concurrent_takes: 8
  lock_map_size: 128
`

	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Storage.Backend != config.BackendFS || cfg.Storage.RootDir != "/tmp/otoforge-data" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Audio.TargetSampleRate != 48000 {
		t.Errorf("TargetSampleRate = %d, want 48000", cfg.Audio.TargetSampleRate)
	}
	if cfg.Aligner.Name != "http" || cfg.Aligner.BaseURL != "http://localhost:8080" {
		t.Errorf("Aligner = %+v", cfg.Aligner)
	}
	if cfg.Aligner.TimeoutSeconds != 30 || cfg.Aligner.Language != "ja" {
		t.Errorf("Aligner = %+v", cfg.Aligner)
	}
	if cfg.Pipeline.MaxConcurrentTakes != 8 || cfg.Pipeline.LockMapSize != 128 {
		t.Errorf("Pipeline = %+v", cfg.Pipeline)
	}
}

func TestLoadFromReaderDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Storage.Backend != config.BackendFS {
		t.Errorf("Backend = %q, want fs", cfg.Storage.Backend)
	}
	if cfg.Storage.RootDir != config.DefaultRootDir {
		t.Errorf("RootDir = %q, want %q", cfg.Storage.RootDir, config.DefaultRootDir)
	}
	if cfg.Audio.TargetSampleRate != config.DefaultTargetSampleRate {
		t.Errorf("TargetSampleRate = %d, want %d", cfg.Audio.TargetSampleRate, config.DefaultTargetSampleRate)
	}
	if cfg.Aligner.TimeoutSeconds != config.DefaultAlignTimeoutSecs {
		t.Errorf("TimeoutSeconds = %d, want %d", cfg.Aligner.TimeoutSeconds, config.DefaultAlignTimeoutSecs)
	}
	if cfg.Pipeline.MaxConcurrentTakes != config.DefaultMaxConcurrentTakes {
		t.Errorf("MaxConcurrentTakes = %d, want %d", cfg.Pipeline.MaxConcurrentTakes, config.DefaultMaxConcurrentTakes)
	}
	if cfg.Pipeline.LockMapSize != config.DefaultLockMapSize {
		t.Errorf("LockMapSize = %d, want %d", cfg.Pipeline.LockMapSize, config.DefaultLockMapSize)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("unknown_section:\n  x: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "invalid log level",
			yaml: "server:\n  log_level: noisy\n",
			want: "server.log_level",
		},
		{
			name: "invalid backend",
			yaml: "storage:\n  backend: s3\n",
			want: "storage.backend",
		},
		{
			name: "postgres without dsn",
			yaml: "storage:\n  backend: postgres\n",
			want: "storage.postgres_dsn",
		},
		{
			name: "sample rate out of range",
			yaml: "audio:\n  target_sample_rate: 4000\n",
			want: "audio.target_sample_rate",
		},
		{
			name: "unknown aligner",
			yaml: "aligner:\n  name: festival\n",
			want: "aligner.name",
		},
		{
			name: "http aligner without url",
			yaml: "aligner:\n  name: http\n",
			want: "aligner.base_url",
		},
		{
			name: "negative concurrency",
			yaml: "pipeline:\n  max_concurrent_takes: -2\n",
			want: "pipeline.max_concurrent_takes",
		},
		{
			name: "negative lock map size",
			yaml: "pipeline:\n  lock_map_size: -1\n",
			want: "pipeline.lock_map_size",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	t.Parallel()

	yaml := "server:\n  log_level: noisy\nstorage:\n  backend: s3\n"
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "server.log_level") || !strings.Contains(msg, "storage.backend") {
		t.Fatalf("joined error %q missing one of the failures", msg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load("/nonexistent/otoforge.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
