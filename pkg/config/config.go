package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Video quality policy values.
const (
	QualityHighest = "highest"
	QualityMedium  = "medium"
	QualityLowest  = "lowest"
)

// Config holds all configuration options for the downloader.
type Config struct {
	// Instagram credentials and session headers
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Download policy (the run settings: media kinds, quality, size cap)
	Download DownloadConfig `yaml:"download" json:"download"`

	// Inter-request pacing
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry / backoff tuning
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// InstagramConfig holds the cookie set used as the only authentication
// mechanism, plus the browser identity sent with every request.
type InstagramConfig struct {
	SessionID string `yaml:"session_id" json:"session_id"`
	CSRFToken string `yaml:"csrf_token" json:"csrf_token"`
	DSUserID  string `yaml:"ds_user_id" json:"ds_user_id"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// DownloadConfig holds the per-run download policy.
type DownloadConfig struct {
	DownloadVideos  bool          `yaml:"download_videos" json:"download_videos"`
	DownloadImages  bool          `yaml:"download_images" json:"download_images"`
	VideoQuality    string        `yaml:"video_quality" json:"video_quality"`
	MaxVideoSizeMB  int64         `yaml:"max_video_size_mb" json:"max_video_size_mb"`
	MaxPosts        int           `yaml:"max_posts" json:"max_posts"` // 0 = unbounded
	PageSize        int           `yaml:"page_size" json:"page_size"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
}

// MaxVideoSizeBytes returns the size cap converted to bytes.
func (d DownloadConfig) MaxVideoSizeBytes() int64 {
	return d.MaxVideoSizeMB * 1024 * 1024
}

// RateLimitConfig holds the deliberate inter-request delays. Sleeps are
// fixed or jittered, not adaptive.
type RateLimitConfig struct {
	RequestDelay time.Duration `yaml:"request_delay" json:"request_delay"`
	PageDelay    time.Duration `yaml:"page_delay" json:"page_delay"`
	// Jitter is the fraction of the delay randomized in both directions
	// (0.0 to 1.0).
	Jitter float64 `yaml:"jitter" json:"jitter"`
}

// RetryConfig holds retry and backoff tuning for transient failures.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`

	// Rate-limit responses at the extraction layer get a separate,
	// longer-fused budget before the run aborts.
	RateLimitAttempts  int           `yaml:"rate_limit_attempts" json:"rate_limit_attempts"`
	RateLimitBaseDelay time.Duration `yaml:"rate_limit_base_delay" json:"rate_limit_base_delay"`
}

// OutputConfig holds output directory configuration.
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Download: DownloadConfig{
			DownloadVideos:  true,
			DownloadImages:  true,
			VideoQuality:    QualityHighest,
			MaxVideoSizeMB:  50,
			MaxPosts:        0,
			PageSize:        12,
			DownloadTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestDelay: 1 * time.Second,
			PageDelay:    3 * time.Second,
			Jitter:       0.5,
		},
		Retry: RetryConfig{
			MaxAttempts:        3,
			BaseDelay:          2 * time.Second,
			MaxDelay:           60 * time.Second,
			Multiplier:         2.0,
			JitterFactor:       0.1,
			RateLimitAttempts:  3,
			RateLimitBaseDelay: 30 * time.Second,
		},
		Output: OutputConfig{
			BaseDirectory: "./downloads",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("IGDL_SESSION_ID"); v != "" {
		c.Instagram.SessionID = v
	}
	if v := os.Getenv("IGDL_CSRF_TOKEN"); v != "" {
		c.Instagram.CSRFToken = v
	}
	if v := os.Getenv("IGDL_DS_USER_ID"); v != "" {
		c.Instagram.DSUserID = v
	}
	if v := os.Getenv("IGDL_USER_AGENT"); v != "" {
		c.Instagram.UserAgent = v
	}
	if v := os.Getenv("IGDL_OUTPUT_DIR"); v != "" {
		c.Output.BaseDirectory = v
	}
	if v := os.Getenv("IGDL_VIDEO_QUALITY"); v != "" {
		c.Download.VideoQuality = strings.ToLower(v)
	}
	if v := os.Getenv("IGDL_DOWNLOAD_VIDEOS"); v != "" {
		c.Download.DownloadVideos = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("IGDL_DOWNLOAD_IMAGES"); v != "" {
		c.Download.DownloadImages = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("IGDL_MAX_VIDEO_SIZE_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Download.MaxVideoSizeMB = n
		}
	}
	if v := os.Getenv("IGDL_MAX_POSTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Download.MaxPosts = n
		}
	}
	if v := os.Getenv("IGDL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for a config file in standard locations.
func (c *Config) findConfigFile() string {
	locations := []string{
		".igdownloader.yaml",
		".igdownloader.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "igdownloader", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".igdownloader.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	switch c.Download.VideoQuality {
	case QualityHighest, QualityMedium, QualityLowest:
	default:
		errs = append(errs, fmt.Errorf("invalid video quality %q (want highest, medium or lowest)", c.Download.VideoQuality))
	}
	if c.Download.MaxVideoSizeMB <= 0 {
		errs = append(errs, errors.New("max video size must be positive"))
	}
	if c.Download.MaxPosts < 0 {
		errs = append(errs, errors.New("max posts cannot be negative"))
	}
	if c.Download.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	if c.RateLimit.RequestDelay < 0 || c.RateLimit.PageDelay < 0 {
		errs = append(errs, errors.New("rate limit delays cannot be negative"))
	}
	if c.RateLimit.Jitter < 0 || c.RateLimit.Jitter > 1 {
		errs = append(errs, errors.New("jitter must be between 0 and 1"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ValidateCredentials checks that the required cookie set is present.
// Separate from Validate so config-only commands work without a session.
func (c *Config) ValidateCredentials() error {
	var errs []error
	if c.Instagram.SessionID == "" {
		errs = append(errs, errors.New("Instagram session ID is required"))
	}
	if c.Instagram.CSRFToken == "" {
		errs = append(errs, errors.New("Instagram CSRF token is required"))
	}
	if c.Instagram.DSUserID == "" {
		errs = append(errs, errors.New("Instagram ds_user_id is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Save saves the configuration to a file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["session-id"].(string); ok && v != "" {
		c.Instagram.SessionID = v
	}
	if v, ok := flags["csrf-token"].(string); ok && v != "" {
		c.Instagram.CSRFToken = v
	}
	if v, ok := flags["ds-user-id"].(string); ok && v != "" {
		c.Instagram.DSUserID = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["video-quality"].(string); ok && v != "" {
		c.Download.VideoQuality = strings.ToLower(v)
	}
	if v, ok := flags["no-videos"].(bool); ok && v {
		c.Download.DownloadVideos = false
	}
	if v, ok := flags["no-images"].(bool); ok && v {
		c.Download.DownloadImages = false
	}
	if v, ok := flags["max-video-size"].(int64); ok && v > 0 {
		c.Download.MaxVideoSizeMB = v
	}
	if v, ok := flags["max-posts"].(int); ok && v > 0 {
		c.Download.MaxPosts = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment variables > .env file > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igdownloader.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
