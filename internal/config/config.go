// Package config loads the derivative generator's settings from the
// environment. A Config is built once at startup and passed down explicitly.
package config

import (
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/zeebo/errs"

	"github.com/tendant/simple-content-derivatives/internal/storage"
)

// ErrConfiguration is the error class for missing or invalid settings
var ErrConfiguration = errs.Class("configuration")

// Default rendition parameters
const (
	DefaultThumbSize    = 600
	DefaultWebSize      = 2800
	DefaultThumbQuality = 74
	DefaultWebQuality   = 82
)

// S3 holds the object store endpoint and credentials
type S3 struct {
	// URL is the endpoint, e.g. https://s3.example.com
	// Required unless a local store directory is used
	URL string `env:"S3_URL"`

	// AccessKey and SecretKey sign requests
	// Required unless a local store directory is used
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`

	// Region used for request signing
	// Optional. Defaults to "us-east-1"
	Region string `env:"S3_REGION"`
}

// Config holds derivative generator configuration
type Config struct {
	S3 S3

	// Bucket holding originals and derivatives
	// Optional. Defaults to "astro-images"
	Bucket string `env:"DERIVATIVES_BUCKET"`

	// ContentDir is the directory of descriptor YAML files
	// Optional. Defaults to "content/images"
	ContentDir string `env:"DERIVATIVES_CONTENT_DIR"`

	// RepoDir is the git checkout used for changed-revision mode
	// Optional. Defaults to the working directory
	RepoDir string `env:"DERIVATIVES_REPO_DIR"`

	// StoreDir switches the object store to a local directory
	// Optional. Intended for development runs
	StoreDir string `env:"DERIVATIVES_STORE_DIR"`

	// ThumbSize and WebSize are the rendition long edges in pixels
	// Optional. Default to 600 and 2800
	ThumbSize int `env:"DERIVATIVES_THUMB_SIZE"`
	WebSize   int `env:"DERIVATIVES_WEB_SIZE"`

	// ThumbQuality and WebQuality are the WebP quality levels
	// Optional. Default to 74 and 82
	ThumbQuality int `env:"DERIVATIVES_THUMB_QUALITY"`
	WebQuality   int `env:"DERIVATIVES_WEB_QUALITY"`

	// Workers is the number of descriptors processed at once
	// Optional. Defaults to 1 (strictly sequential)
	Workers int `env:"DERIVATIVES_WORKERS"`

	// KeepGoing continues past failed descriptors and reports them at the end
	// Optional. Defaults to false (stop at the first failure)
	KeepGoing bool `env:"DERIVATIVES_KEEP_GOING"`

	// LedgerDatabaseURL records every generated derivative
	// Optional. postgres://... or sqlite://path
	LedgerDatabaseURL string `env:"LEDGER_DATABASE_URL"`

	// PushgatewayURL receives run metrics when the batch ends
	// Optional
	PushgatewayURL string `env:"PUSHGATEWAY_URL"`
}

// Load reads the configuration from the environment and applies defaults
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, ErrConfiguration.Wrap(err)
	}
	cfg.WithDefaults()
	return cfg, nil
}

// WithDefaults fills in default values for optional fields
func (c *Config) WithDefaults() {
	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
	if c.Bucket == "" {
		c.Bucket = "astro-images"
	}
	if c.ContentDir == "" {
		c.ContentDir = "content/images"
	}
	if c.ThumbSize == 0 {
		c.ThumbSize = DefaultThumbSize
	}
	if c.WebSize == 0 {
		c.WebSize = DefaultWebSize
	}
	if c.ThumbQuality == 0 {
		c.ThumbQuality = DefaultThumbQuality
	}
	if c.WebQuality == 0 {
		c.WebQuality = DefaultWebQuality
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
}

// Validate checks rendition settings
func (c *Config) Validate() error {
	var group errs.Group
	if c.ThumbSize < 1 {
		group.Add(ErrConfiguration.New("thumb size must be positive, got %d", c.ThumbSize))
	}
	if c.WebSize < 1 {
		group.Add(ErrConfiguration.New("web size must be positive, got %d", c.WebSize))
	}
	if c.ThumbQuality < 1 || c.ThumbQuality > 100 {
		group.Add(ErrConfiguration.New("thumb quality must be within 1-100, got %d", c.ThumbQuality))
	}
	if c.WebQuality < 1 || c.WebQuality > 100 {
		group.Add(ErrConfiguration.New("web quality must be within 1-100, got %d", c.WebQuality))
	}
	if c.Workers < 1 {
		group.Add(ErrConfiguration.New("workers must be at least 1, got %d", c.Workers))
	}
	return group.Err()
}

// ValidateStore checks that the object store can be reached: either a
// local store directory or a complete set of S3 credentials.
func (c *Config) ValidateStore() error {
	if c.StoreDir != "" {
		return nil
	}
	var missing []string
	if c.S3.URL == "" {
		missing = append(missing, "S3_URL")
	}
	if c.S3.AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if c.S3.SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if len(missing) > 0 {
		return ErrConfiguration.New("missing S3 credentials: %v", missing)
	}
	return nil
}

// S3Config returns the storage settings for the configured bucket
func (c *Config) S3Config() storage.S3Config {
	return storage.S3Config{
		Endpoint:  c.S3.URL,
		AccessKey: c.S3.AccessKey,
		SecretKey: c.S3.SecretKey,
		Region:    c.S3.Region,
		Bucket:    c.Bucket,
	}
}
