package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the media harvester
type Config struct {
	// Crawl traversal bounds
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Duplicate detection settings
	Dedup DedupConfig `yaml:"dedup" json:"dedup"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Browser automation settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Persisted login session settings
	Session SessionConfig `yaml:"session" json:"session"`

	// Site authentication settings
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// CrawlConfig bounds the page traversal
type CrawlConfig struct {
	MaxDepth        int  `yaml:"max_depth" json:"max_depth"`
	MaxPages        int  `yaml:"max_pages" json:"max_pages"`
	SameDomainOnly  bool `yaml:"same_domain_only" json:"same_domain_only"`
	MaxLinksPerPage int  `yaml:"max_links_per_page" json:"max_links_per_page"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Workers         int           `yaml:"workers" json:"workers"`
	Parallel        bool          `yaml:"parallel" json:"parallel"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RetryAttempts   int           `yaml:"retry_attempts" json:"retry_attempts"`
	MaxFiles        int           `yaml:"max_files" json:"max_files"`
	MinWidth        int           `yaml:"min_width" json:"min_width"`
	MinHeight       int           `yaml:"min_height" json:"min_height"`
	IncludeImages   bool          `yaml:"include_images" json:"include_images"`
	IncludeVideos   bool          `yaml:"include_videos" json:"include_videos"`
	IncludeAudio    bool          `yaml:"include_audio" json:"include_audio"`
	ExtractMetadata bool          `yaml:"extract_metadata" json:"extract_metadata"`
}

// DedupConfig holds perceptual-duplicate detection configuration
type DedupConfig struct {
	// HashAlgorithm is one of "phash", "average", "dhash" or "none"
	HashAlgorithm    string `yaml:"hash_algorithm" json:"hash_algorithm"`
	MoveDuplicates   bool   `yaml:"move_duplicates" json:"move_duplicates"`
	DuplicatesFolder string `yaml:"duplicates_folder" json:"duplicates_folder"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
	ContinueRun   bool   `yaml:"continue_run" json:"continue_run"`
	WriteSidecars bool   `yaml:"write_sidecars" json:"write_sidecars"`
}

// BrowserConfig holds browser automation configuration
type BrowserConfig struct {
	Headless           bool          `yaml:"headless" json:"headless"`
	UserAgent          string        `yaml:"user_agent" json:"user_agent"`
	ViewportWidth      int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight     int           `yaml:"viewport_height" json:"viewport_height"`
	NavigationTimeout  time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	WaitStrategy       string        `yaml:"wait_strategy" json:"wait_strategy"`
	ScrollPages        bool          `yaml:"scroll_pages" json:"scroll_pages"`
	StealthMode        bool          `yaml:"stealth_mode" json:"stealth_mode"`
	ScreenshotElements bool          `yaml:"screenshot_elements" json:"screenshot_elements"`
}

// SessionConfig holds persisted browser session configuration
type SessionConfig struct {
	Directory string        `yaml:"directory" json:"directory"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
}

// AuthConfig holds site login configuration
type AuthConfig struct {
	ConfigFile       string        `yaml:"config_file" json:"config_file"`
	MaxLoginAttempts int           `yaml:"max_login_attempts" json:"max_login_attempts"`
	LoginCooldown    time.Duration `yaml:"login_cooldown" json:"login_cooldown"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int                      `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int                      `yaml:"burst_size" json:"burst_size"`
	BackoffMultiplier float64                  `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	MaxRetries        int                      `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration            `yaml:"retry_delay" json:"retry_delay"`
	DefaultPageDelay  time.Duration            `yaml:"default_page_delay" json:"default_page_delay"`
	DomainPageDelays  map[string]time.Duration `yaml:"domain_page_delays" json:"domain_page_delays"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			MaxDepth:        2,
			MaxPages:        50,
			SameDomainOnly:  true,
			MaxLinksPerPage: 50,
		},
		Download: DownloadConfig{
			Workers:         4,
			Parallel:        true,
			DownloadTimeout: 60 * time.Second,
			RetryAttempts:   3,
			MaxFiles:        0, // 0 means no limit
			MinWidth:        0,
			MinHeight:       0,
			IncludeImages:   true,
			IncludeVideos:   true,
			IncludeAudio:    false,
			ExtractMetadata: true,
		},
		Dedup: DedupConfig{
			HashAlgorithm:    "phash",
			MoveDuplicates:   false,
			DuplicatesFolder: "_duplicates",
		},
		Output: OutputConfig{
			BaseDirectory: "./downloads",
			ContinueRun:   false,
			WriteSidecars: false,
		},
		Browser: BrowserConfig{
			Headless:           true,
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			ViewportWidth:      1920,
			ViewportHeight:     1080,
			NavigationTimeout:  45 * time.Second,
			WaitStrategy:       "load",
			ScrollPages:        true,
			StealthMode:        true,
			ScreenshotElements: false,
		},
		Session: SessionConfig{
			Directory: filepath.Join(os.Getenv("HOME"), ".config", "mediaharvest", "sessions"),
			TTL:       7 * 24 * time.Hour,
		},
		Auth: AuthConfig{
			ConfigFile:       "",
			MaxLoginAttempts: 2,
			LoginCooldown:    300 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         10,
			BackoffMultiplier: 2.0,
			MaxRetries:        3,
			RetryDelay:        5 * time.Second,
			DefaultPageDelay:  2 * time.Second,
			DomainPageDelays: map[string]time.Duration{
				"reddit.com":     3 * time.Second,
				"artstation.com": 2500 * time.Millisecond,
				"behance.net":    2 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Output directory
	if outputDir := os.Getenv("MEDIAHARVEST_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}

	// Crawl bounds
	if depth := os.Getenv("MEDIAHARVEST_MAX_DEPTH"); depth != "" {
		var val int
		fmt.Sscanf(depth, "%d", &val)
		if val >= 0 {
			c.Crawl.MaxDepth = val
		}
	}
	if pages := os.Getenv("MEDIAHARVEST_MAX_PAGES"); pages != "" {
		var val int
		fmt.Sscanf(pages, "%d", &val)
		if val > 0 {
			c.Crawl.MaxPages = val
		}
	}

	// Download settings
	if workers := os.Getenv("MEDIAHARVEST_WORKERS"); workers != "" {
		var val int
		fmt.Sscanf(workers, "%d", &val)
		if val > 0 {
			c.Download.Workers = val
		}
	}
	if maxFiles := os.Getenv("MEDIAHARVEST_MAX_FILES"); maxFiles != "" {
		var val int
		fmt.Sscanf(maxFiles, "%d", &val)
		if val > 0 {
			c.Download.MaxFiles = val
		}
	}
	if minWidth := os.Getenv("MEDIAHARVEST_MIN_WIDTH"); minWidth != "" {
		var val int
		fmt.Sscanf(minWidth, "%d", &val)
		if val > 0 {
			c.Download.MinWidth = val
		}
	}
	if minHeight := os.Getenv("MEDIAHARVEST_MIN_HEIGHT"); minHeight != "" {
		var val int
		fmt.Sscanf(minHeight, "%d", &val)
		if val > 0 {
			c.Download.MinHeight = val
		}
	}

	// Dedup algorithm
	if algo := os.Getenv("MEDIAHARVEST_HASH_ALGORITHM"); algo != "" {
		c.Dedup.HashAlgorithm = algo
	}

	// Browser
	if headless := os.Getenv("MEDIAHARVEST_HEADLESS"); headless != "" {
		c.Browser.Headless = strings.ToLower(headless) == "true"
	}
	if userAgent := os.Getenv("MEDIAHARVEST_USER_AGENT"); userAgent != "" {
		c.Browser.UserAgent = userAgent
	}

	// Sessions
	if sessionDir := os.Getenv("MEDIAHARVEST_SESSION_DIR"); sessionDir != "" {
		c.Session.Directory = sessionDir
	}

	// Auth
	if authFile := os.Getenv("MEDIAHARVEST_AUTH_CONFIG"); authFile != "" {
		c.Auth.ConfigFile = authFile
	}

	// Logging level
	if logLevel := os.Getenv("MEDIAHARVEST_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
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

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	// Check in order of precedence
	locations := []string{
		".mediaharvest.yaml",
		".mediaharvest.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "mediaharvest", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "mediaharvest", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".mediaharvest.yaml"),
		filepath.Join(os.Getenv("HOME"), ".mediaharvest.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Validate crawl bounds
	if c.Crawl.MaxDepth < 0 {
		errs = append(errs, errors.New("max depth cannot be negative"))
	}
	if c.Crawl.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	if c.Crawl.MaxLinksPerPage <= 0 {
		errs = append(errs, errors.New("max links per page must be positive"))
	}

	// Validate download settings
	if c.Download.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Download.Workers > 16 {
		errs = append(errs, errors.New("workers should not exceed 16"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.MaxFiles < 0 {
		errs = append(errs, errors.New("max files cannot be negative"))
	}
	if !c.Download.IncludeImages && !c.Download.IncludeVideos && !c.Download.IncludeAudio {
		errs = append(errs, errors.New("at least one media type must be enabled"))
	}

	// Validate dedup settings
	validAlgorithms := map[string]bool{
		"phash": true, "average": true, "dhash": true, "none": true,
	}
	if !validAlgorithms[strings.ToLower(c.Dedup.HashAlgorithm)] {
		errs = append(errs, errors.New("invalid hash algorithm"))
	}
	if c.Dedup.DuplicatesFolder == "" {
		errs = append(errs, errors.New("duplicates folder is required"))
	}

	// Validate output settings
	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	// Validate browser settings
	validWaitStrategies := map[string]bool{
		"load": true, "domcontentloaded": true, "networkidle": true,
	}
	if !validWaitStrategies[strings.ToLower(c.Browser.WaitStrategy)] {
		errs = append(errs, errors.New("invalid wait strategy"))
	}
	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("navigation timeout must be positive"))
	}

	// Validate rate limiting
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	if c.RateLimit.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	// Validate logging
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

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if depth, ok := flags["depth"].(int); ok && depth >= 0 {
		c.Crawl.MaxDepth = depth
	}
	if pages, ok := flags["max-pages"].(int); ok && pages > 0 {
		c.Crawl.MaxPages = pages
	}
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.Download.Workers = workers
	}
	if maxFiles, ok := flags["max-files"].(int); ok && maxFiles > 0 {
		c.Download.MaxFiles = maxFiles
	}
	if minWidth, ok := flags["min-width"].(int); ok && minWidth > 0 {
		c.Download.MinWidth = minWidth
	}
	if minHeight, ok := flags["min-height"].(int); ok && minHeight > 0 {
		c.Download.MinHeight = minHeight
	}
	if algo, ok := flags["hash-algorithm"].(string); ok && algo != "" {
		c.Dedup.HashAlgorithm = algo
	}
	if moveDup, ok := flags["move-duplicates"].(bool); ok {
		c.Dedup.MoveDuplicates = moveDup
	}
	if continueRun, ok := flags["continue"].(bool); ok {
		c.Output.ContinueRun = continueRun
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = headless
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// PageDelay returns the politeness delay for a domain, falling back to
// the default delay when no override is configured.
func (c *RateLimitConfig) PageDelay(domain string) time.Duration {
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))
	for suffix, delay := range c.DomainPageDelays {
		if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
			return delay
		}
	}
	return c.DefaultPageDelay
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".env"))
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".mediaharvest.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
