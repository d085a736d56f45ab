package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Catalog  CatalogConfig  `json:"catalog" mapstructure:"catalog"`
	Search   SearchConfig   `json:"search" mapstructure:"search"`
	Download DownloadConfig `json:"download" mapstructure:"download"`
	Network  NetworkConfig  `json:"network" mapstructure:"network"`
	Store    StoreConfig    `json:"store" mapstructure:"store"`
	Cache    CacheConfig    `json:"cache" mapstructure:"cache"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// CatalogConfig contains catalog API settings
type CatalogConfig struct {
	ClientID     string `json:"client_id" mapstructure:"client_id"`
	ClientSecret string `json:"client_secret" mapstructure:"client_secret"`
	BaseURL      string `json:"base_url" mapstructure:"base_url"`
	TokenURL     string `json:"token_url" mapstructure:"token_url"`
	RateLimit    int    `json:"rate_limit" mapstructure:"rate_limit"`
}

// SearchConfig contains media source search settings
type SearchConfig struct {
	BaseURL    string `json:"base_url" mapstructure:"base_url"`
	MaxResults int    `json:"max_results" mapstructure:"max_results"`
}

// DownloadConfig contains download-related settings
type DownloadConfig struct {
	OutputDir           string `json:"output_dir" mapstructure:"output_dir"`
	ConcurrentDownloads int    `json:"concurrent_downloads" mapstructure:"concurrent_downloads"`
	EmbedArtwork        bool   `json:"embed_artwork" mapstructure:"embed_artwork"`
	ArtworkSize         int    `json:"artwork_size" mapstructure:"artwork_size"`
	FetchTool           string `json:"fetch_tool" mapstructure:"fetch_tool"`
	FetchToolPath       string `json:"fetch_tool_path" mapstructure:"fetch_tool_path"`
	AudioFormat         string `json:"audio_format" mapstructure:"audio_format"`
	ShutdownGraceSecs   int    `json:"shutdown_grace_secs" mapstructure:"shutdown_grace_secs"`
}

// NetworkConfig contains network-related settings
type NetworkConfig struct {
	ProxyURL   string `json:"proxy_url" mapstructure:"proxy_url"`
	Timeout    int    `json:"timeout" mapstructure:"timeout"`
	MaxRetries int    `json:"max_retries" mapstructure:"max_retries"`
}

// StoreConfig contains queue persistence settings
type StoreConfig struct {
	FilePath string `json:"file_path" mapstructure:"file_path"`
}

// CacheConfig contains catalog response cache settings
type CacheConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	DBPath  string `json:"db_path" mapstructure:"db_path"`
	TTLSecs int    `json:"ttl_secs" mapstructure:"ttl_secs"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	Output     string `json:"output" mapstructure:"output"`
	FilePath   string `json:"file_path" mapstructure:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Load loads configuration from file or creates default
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if err := ensureConfigDir(configPath); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create with defaults
			if err := v.WriteConfigAs(configPath); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
		} else if os.IsNotExist(err) {
			if err := v.WriteConfigAs(configPath); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("SPOTIFX")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Download.ConcurrentDownloads < 1 {
		return fmt.Errorf("concurrent downloads must be at least 1")
	}

	if c.Download.ConcurrentDownloads > 32 {
		return fmt.Errorf("concurrent downloads cannot exceed 32")
	}

	if c.Download.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}

	if c.Download.AudioFormat != "mp3" && c.Download.AudioFormat != "flac" {
		return fmt.Errorf("invalid audio format: %s (must be mp3 or flac)", c.Download.AudioFormat)
	}

	if c.Download.FetchTool != "http" && c.Download.FetchTool != "ytdlp" {
		return fmt.Errorf("invalid fetch tool: %s (must be http or ytdlp)", c.Download.FetchTool)
	}

	if c.Download.ArtworkSize < 100 || c.Download.ArtworkSize > 5000 {
		return fmt.Errorf("artwork size must be between 100 and 5000 pixels")
	}

	if c.Download.ShutdownGraceSecs < 0 {
		return fmt.Errorf("shutdown grace period cannot be negative")
	}

	if c.Network.Timeout < 1 {
		return fmt.Errorf("network timeout must be at least 1 second")
	}

	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if c.Catalog.RateLimit < 1 {
		return fmt.Errorf("catalog rate limit must be at least 1 request per second")
	}

	if c.Search.MaxResults < 1 {
		return fmt.Errorf("search max results must be at least 1")
	}

	if c.Store.FilePath == "" {
		return fmt.Errorf("store file path cannot be empty")
	}

	if c.Cache.Enabled && c.Cache.TTLSecs < 1 {
		return fmt.Errorf("cache TTL must be at least 1 second when enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	validOutputs := map[string]bool{"file": true, "console": true, "both": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s (must be file, console, or both)", c.Logging.Output)
	}

	if c.Logging.MaxSizeMB < 1 {
		return fmt.Errorf("log max size must be at least 1 MB")
	}

	if c.Logging.MaxBackups < 0 {
		return fmt.Errorf("log max backups cannot be negative")
	}

	if c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("log max age cannot be negative")
	}

	return nil
}

// Save saves the configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.Set("catalog", c.Catalog)
	v.Set("search", c.Search)
	v.Set("download", c.Download)
	v.Set("network", c.Network)
	v.Set("store", c.Store)
	v.Set("cache", c.Cache)
	v.Set("logging", c.Logging)

	return v.WriteConfig()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Catalog defaults
	v.SetDefault("catalog.base_url", "https://api.spotify.com/v1")
	v.SetDefault("catalog.token_url", "https://accounts.spotify.com/api/token")
	v.SetDefault("catalog.rate_limit", 10)

	// Search defaults
	v.SetDefault("search.base_url", "https://inv.nadeko.net")
	v.SetDefault("search.max_results", 10)

	// Download defaults
	v.SetDefault("download.output_dir", getDefaultDownloadDir())
	v.SetDefault("download.concurrent_downloads", 3)
	v.SetDefault("download.embed_artwork", true)
	v.SetDefault("download.artwork_size", 1200)
	v.SetDefault("download.fetch_tool", "ytdlp")
	v.SetDefault("download.fetch_tool_path", "yt-dlp")
	v.SetDefault("download.audio_format", "mp3")
	v.SetDefault("download.shutdown_grace_secs", 30)

	// Network defaults
	v.SetDefault("network.timeout", 30)
	v.SetDefault("network.max_retries", 3)

	// Store defaults
	v.SetDefault("store.file_path", filepath.Join(GetDataDir(), "queue.json"))

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.db_path", filepath.Join(GetDataDir(), "cache.db"))
	v.SetDefault("cache.ttl_secs", 3600)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "file")
	v.SetDefault("logging.file_path", filepath.Join(GetDataDir(), "logs", "app.log"))
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	return filepath.Join(GetDataDir(), "settings.json")
}

// getDefaultDownloadDir returns the default download directory
func getDefaultDownloadDir() string {
	return filepath.Join(GetDataDir(), "downloads")
}

// ensureConfigDir ensures the configuration directory exists
func ensureConfigDir(configPath string) error {
	dir := filepath.Dir(configPath)
	return os.MkdirAll(dir, 0755)
}

// Reload reloads the configuration from file
func (c *Config) Reload(configPath string) error {
	newConfig, err := Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	*c = *newConfig
	return nil
}

// GetDataDir returns the application data directory
func GetDataDir() string {
	if dir := os.Getenv("SPOTIFX_DATA_DIR"); dir != "" {
		return dir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".spotifx")
}
