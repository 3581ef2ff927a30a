package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Download.DownloadVideos)
	assert.True(t, cfg.Download.DownloadImages)
	assert.Equal(t, QualityHighest, cfg.Download.VideoQuality)
	assert.Equal(t, int64(50), cfg.Download.MaxVideoSizeMB)
	assert.Equal(t, 12, cfg.Download.PageSize)
	assert.Equal(t, 0, cfg.Download.MaxPosts)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "./downloads", cfg.Output.BaseDirectory)

	// Defaults are valid out of the box.
	assert.NoError(t, cfg.Validate())
}

func TestMaxVideoSizeBytes(t *testing.T) {
	cfg := DownloadConfig{MaxVideoSizeMB: 50}
	assert.Equal(t, int64(50*1024*1024), cfg.MaxVideoSizeBytes())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("IGDL_SESSION_ID", "env-session")
	t.Setenv("IGDL_CSRF_TOKEN", "env-csrf")
	t.Setenv("IGDL_DS_USER_ID", "12345")
	t.Setenv("IGDL_VIDEO_QUALITY", "LOWEST")
	t.Setenv("IGDL_DOWNLOAD_VIDEOS", "false")
	t.Setenv("IGDL_MAX_VIDEO_SIZE_MB", "20")
	t.Setenv("IGDL_MAX_POSTS", "100")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "env-session", cfg.Instagram.SessionID)
	assert.Equal(t, "env-csrf", cfg.Instagram.CSRFToken)
	assert.Equal(t, "12345", cfg.Instagram.DSUserID)
	assert.Equal(t, "lowest", cfg.Download.VideoQuality)
	assert.False(t, cfg.Download.DownloadVideos)
	assert.Equal(t, int64(20), cfg.Download.MaxVideoSizeMB)
	assert.Equal(t, 100, cfg.Download.MaxPosts)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
instagram:
  session_id: file-session
  csrf_token: file-csrf
  ds_user_id: "99"
download:
  video_quality: medium
  max_video_size_mb: 25
output:
  base_directory: /tmp/media
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "file-session", cfg.Instagram.SessionID)
	assert.Equal(t, QualityMedium, cfg.Download.VideoQuality)
	assert.Equal(t, int64(25), cfg.Download.MaxVideoSizeMB)
	assert.Equal(t, "/tmp/media", cfg.Output.BaseDirectory)
	// Untouched values keep their defaults.
	assert.Equal(t, 12, cfg.Download.PageSize)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"session-id":     "flag-session",
		"output":         "/data",
		"video-quality":  "LOWEST",
		"no-videos":      true,
		"max-video-size": int64(10),
		"max-posts":      7,
		"log-level":      "debug",
	})

	assert.Equal(t, "flag-session", cfg.Instagram.SessionID)
	assert.Equal(t, "/data", cfg.Output.BaseDirectory)
	assert.Equal(t, QualityLowest, cfg.Download.VideoQuality)
	assert.False(t, cfg.Download.DownloadVideos)
	assert.Equal(t, int64(10), cfg.Download.MaxVideoSizeMB)
	assert.Equal(t, 7, cfg.Download.MaxPosts)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"bad quality", func(c *Config) { c.Download.VideoQuality = "ultra" }, false},
		{"zero size cap", func(c *Config) { c.Download.MaxVideoSizeMB = 0 }, false},
		{"negative max posts", func(c *Config) { c.Download.MaxPosts = -1 }, false},
		{"zero page size", func(c *Config) { c.Download.PageSize = 0 }, false},
		{"zero timeout", func(c *Config) { c.Download.DownloadTimeout = 0 }, false},
		{"negative delay", func(c *Config) { c.RateLimit.RequestDelay = -time.Second }, false},
		{"jitter above one", func(c *Config) { c.RateLimit.Jitter = 1.5 }, false},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, false},
		{"multiplier below one", func(c *Config) { c.Retry.Multiplier = 0.5 }, false},
		{"empty output dir", func(c *Config) { c.Output.BaseDirectory = "" }, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if tt.valid {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.ValidateCredentials())

	cfg.Instagram.SessionID = "s"
	cfg.Instagram.CSRFToken = "c"
	assert.Error(t, cfg.ValidateCredentials(), "ds_user_id still missing")

	cfg.Instagram.DSUserID = "1"
	assert.NoError(t, cfg.ValidateCredentials())
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Download.VideoQuality = QualityMedium
	cfg.Output.BaseDirectory = "/somewhere"
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, QualityMedium, loaded.Download.VideoQuality)
	assert.Equal(t, "/somewhere", loaded.Output.BaseDirectory)
}
