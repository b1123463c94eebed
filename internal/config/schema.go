package config

import (
	"time"

	"github.com/vaginadesolator/tachiyomi/internal/download"
)

// Config holds tachiyomi configuration.
// Loaded from: ./config.yaml or ~/.tachiyomi/config.yaml
type Config struct {
	Library  LibraryCfg  `mapstructure:"library" yaml:"library"`
	Download DownloadCfg `mapstructure:"download" yaml:"download"`
}

// LibraryCfg locates the on-disk library.
type LibraryCfg struct {
	Root      string `mapstructure:"root" yaml:"root"`             // chapter directories live here
	QueueFile string `mapstructure:"queue_file" yaml:"queue_file"` // persisted download queue
	CacheDir  string `mapstructure:"cache_dir" yaml:"cache_dir"`   // shared image cache
}

// DownloadCfg tunes the download pipeline.
type DownloadCfg struct {
	MaxConcurrentSources int   `mapstructure:"max_concurrent_sources" yaml:"max_concurrent_sources"`
	PageConcurrency      int   `mapstructure:"page_concurrency" yaml:"page_concurrency"`
	RetryCount           int   `mapstructure:"retry_count" yaml:"retry_count"`
	RetryDelaySeconds    int   `mapstructure:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	MinFreeSpaceMiB      int64 `mapstructure:"min_free_space_mib" yaml:"min_free_space_mib"`
	HTTPTimeoutSeconds   int   `mapstructure:"http_timeout_seconds" yaml:"http_timeout_seconds"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Library: LibraryCfg{
			Root:      "library",
			QueueFile: "queue.json",
			CacheDir:  "cache",
		},
		Download: DownloadCfg{
			MaxConcurrentSources: download.DefaultMaxConcurrentSources,
			PageConcurrency:      download.DefaultPageConcurrency,
			RetryCount:           download.DefaultRetryCount,
			RetryDelaySeconds:    int(download.DefaultRetryDelay / time.Second),
			MinFreeSpaceMiB:      download.DefaultMinFreeSpace / (1024 * 1024),
			HTTPTimeoutSeconds:   30,
		},
	}
}

// DownloaderConfig converts the download section into the downloader's
// config type.
func (c *Config) DownloaderConfig() download.Config {
	return download.Config{
		MaxConcurrentSources: c.Download.MaxConcurrentSources,
		PageConcurrency:      c.Download.PageConcurrency,
		RetryCount:           c.Download.RetryCount,
		RetryDelay:           time.Duration(c.Download.RetryDelaySeconds) * time.Second,
		MinFreeSpace:         uint64(c.Download.MinFreeSpaceMiB) * 1024 * 1024,
	}
}

// HTTPTimeout returns the configured HTTP client timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Download.HTTPTimeoutSeconds) * time.Second
}
