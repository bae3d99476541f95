package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	require.NotNil(t, cfg)

	// Test Crawl defaults
	assert.Equal(t, 2, cfg.Crawl.MaxDepth)
	assert.Equal(t, 50, cfg.Crawl.MaxPages)
	assert.True(t, cfg.Crawl.SameDomainOnly)
	assert.Equal(t, 50, cfg.Crawl.MaxLinksPerPage)

	// Test Download defaults
	assert.Equal(t, 4, cfg.Download.Workers)
	assert.True(t, cfg.Download.Parallel)
	assert.Equal(t, 60*time.Second, cfg.Download.DownloadTimeout)
	assert.Equal(t, 3, cfg.Download.RetryAttempts)
	assert.Equal(t, 0, cfg.Download.MaxFiles)
	assert.True(t, cfg.Download.IncludeImages)
	assert.True(t, cfg.Download.IncludeVideos)
	assert.False(t, cfg.Download.IncludeAudio)
	assert.True(t, cfg.Download.ExtractMetadata)

	// Test Dedup defaults
	assert.Equal(t, "phash", cfg.Dedup.HashAlgorithm)
	assert.False(t, cfg.Dedup.MoveDuplicates)
	assert.Equal(t, "_duplicates", cfg.Dedup.DuplicatesFolder)

	// Test Output defaults
	assert.Equal(t, "./downloads", cfg.Output.BaseDirectory)
	assert.False(t, cfg.Output.ContinueRun)

	// Test Browser defaults
	assert.True(t, cfg.Browser.Headless)
	assert.NotEmpty(t, cfg.Browser.UserAgent)
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, 1080, cfg.Browser.ViewportHeight)
	assert.Equal(t, 45*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, "load", cfg.Browser.WaitStrategy)

	// Test Session defaults
	assert.NotEmpty(t, cfg.Session.Directory)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.TTL)

	// Test Auth defaults
	assert.Equal(t, 2, cfg.Auth.MaxLoginAttempts)
	assert.Equal(t, 300*time.Second, cfg.Auth.LoginCooldown)

	// Test RateLimit defaults
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 10, cfg.RateLimit.BurstSize)
	assert.Equal(t, 2.0, cfg.RateLimit.BackoffMultiplier)
	assert.Equal(t, 3, cfg.RateLimit.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.RateLimit.RetryDelay)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.DefaultPageDelay)
	assert.Equal(t, 3*time.Second, cfg.RateLimit.DomainPageDelays["reddit.com"])

	// Test Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Logging.File)
	assert.Equal(t, 100, cfg.Logging.MaxSize)
	assert.Equal(t, 3, cfg.Logging.MaxBackups)
	assert.Equal(t, 7, cfg.Logging.MaxAge)
	assert.False(t, cfg.Logging.Compress)
}

func TestLoadFromFile(t *testing.T) {
	t.Run("valid yaml file", func(t *testing.T) {
		tempDir := t.TempDir()
		configPath := filepath.Join(tempDir, "test_config.yaml")

		// Create test config
		testConfig := `
crawl:
  max_depth: 3
  max_pages: 100
  same_domain_only: false
  max_links_per_page: 25

download:
  workers: 2
  parallel: false
  download_timeout: 90s
  retry_attempts: 5
  max_files: 20
  min_width: 512
  min_height: 256
  include_images: true
  include_videos: false
  include_audio: true
  extract_metadata: false

dedup:
  hash_algorithm: average
  move_duplicates: true
  duplicates_folder: _dupes

output:
  base_directory: /file/output
  continue_run: true
  write_sidecars: true

browser:
  headless: false
  user_agent: file_agent
  viewport_width: 1280
  viewport_height: 720
  navigation_timeout: 30s
  wait_strategy: networkidle
  scroll_pages: false

session:
  directory: /file/sessions
  ttl: 48h

auth:
  config_file: /file/auth.json
  max_login_attempts: 1
  login_cooldown: 60s

rate_limit:
  requests_per_minute: 30
  burst_size: 5
  backoff_multiplier: 1.5
  max_retries: 5
  retry_delay: 10s
  default_page_delay: 1s

logging:
  level: warn
  file: /var/log/mediaharvest.log
  max_size: 50
  max_backups: 5
  max_age: 14
  compress: true
`

		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		cfg := DefaultConfig()
		err = cfg.LoadFromFile(configPath)
		require.NoError(t, err)

		// Verify all values were loaded
		assert.Equal(t, 3, cfg.Crawl.MaxDepth)
		assert.Equal(t, 100, cfg.Crawl.MaxPages)
		assert.False(t, cfg.Crawl.SameDomainOnly)
		assert.Equal(t, 25, cfg.Crawl.MaxLinksPerPage)

		assert.Equal(t, 2, cfg.Download.Workers)
		assert.False(t, cfg.Download.Parallel)
		assert.Equal(t, 90*time.Second, cfg.Download.DownloadTimeout)
		assert.Equal(t, 5, cfg.Download.RetryAttempts)
		assert.Equal(t, 20, cfg.Download.MaxFiles)
		assert.Equal(t, 512, cfg.Download.MinWidth)
		assert.Equal(t, 256, cfg.Download.MinHeight)
		assert.True(t, cfg.Download.IncludeImages)
		assert.False(t, cfg.Download.IncludeVideos)
		assert.True(t, cfg.Download.IncludeAudio)
		assert.False(t, cfg.Download.ExtractMetadata)

		assert.Equal(t, "average", cfg.Dedup.HashAlgorithm)
		assert.True(t, cfg.Dedup.MoveDuplicates)
		assert.Equal(t, "_dupes", cfg.Dedup.DuplicatesFolder)

		assert.Equal(t, "/file/output", cfg.Output.BaseDirectory)
		assert.True(t, cfg.Output.ContinueRun)
		assert.True(t, cfg.Output.WriteSidecars)

		assert.False(t, cfg.Browser.Headless)
		assert.Equal(t, "file_agent", cfg.Browser.UserAgent)
		assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
		assert.Equal(t, 720, cfg.Browser.ViewportHeight)
		assert.Equal(t, 30*time.Second, cfg.Browser.NavigationTimeout)
		assert.Equal(t, "networkidle", cfg.Browser.WaitStrategy)
		assert.False(t, cfg.Browser.ScrollPages)

		assert.Equal(t, "/file/sessions", cfg.Session.Directory)
		assert.Equal(t, 48*time.Hour, cfg.Session.TTL)

		assert.Equal(t, "/file/auth.json", cfg.Auth.ConfigFile)
		assert.Equal(t, 1, cfg.Auth.MaxLoginAttempts)
		assert.Equal(t, 60*time.Second, cfg.Auth.LoginCooldown)

		assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
		assert.Equal(t, 5, cfg.RateLimit.BurstSize)
		assert.Equal(t, 1.5, cfg.RateLimit.BackoffMultiplier)
		assert.Equal(t, 5, cfg.RateLimit.MaxRetries)
		assert.Equal(t, 10*time.Second, cfg.RateLimit.RetryDelay)
		assert.Equal(t, 1*time.Second, cfg.RateLimit.DefaultPageDelay)

		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "/var/log/mediaharvest.log", cfg.Logging.File)
		assert.Equal(t, 50, cfg.Logging.MaxSize)
		assert.Equal(t, 5, cfg.Logging.MaxBackups)
		assert.Equal(t, 14, cfg.Logging.MaxAge)
		assert.True(t, cfg.Logging.Compress)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		tempDir := t.TempDir()
		configPath := filepath.Join(tempDir, "invalid.yaml")

		invalidYAML := `
output:
  base_directory: [this is invalid
`
		err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
		require.NoError(t, err)

		cfg := DefaultConfig()
		err = cfg.LoadFromFile(configPath)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("non-existent file", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.LoadFromFile("/non/existent/path/config.yaml")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("empty path searches default locations", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.LoadFromFile("")
		// Should not error, just returns nil if no config found
		assert.NoError(t, err)
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Run("finds config in current directory", func(t *testing.T) {
		tempDir := t.TempDir()
		oldDir, _ := os.Getwd()
		defer os.Chdir(oldDir)

		err := os.Chdir(tempDir)
		require.NoError(t, err)

		// Create config file
		configPath := filepath.Join(tempDir, ".mediaharvest.yaml")
		err = os.WriteFile(configPath, []byte("crawl:\n  max_depth: 1"), 0644)
		require.NoError(t, err)

		cfg := DefaultConfig()
		found := cfg.findConfigFile()
		assert.Equal(t, ".mediaharvest.yaml", found)
	})

	t.Run("no config file found", func(t *testing.T) {
		tempDir := t.TempDir()
		oldDir, _ := os.Getwd()
		defer os.Chdir(oldDir)

		err := os.Chdir(tempDir)
		require.NoError(t, err)

		cfg := DefaultConfig()
		found := cfg.findConfigFile()
		assert.Empty(t, found)
	})
}

func TestValidateErrorMessages(t *testing.T) {
	tests := []struct {
		name          string
		setupConfig   func(*Config)
		expectError   bool
		errorContains []string
	}{
		{
			name:        "valid config",
			setupConfig: func(cfg *Config) {},
			expectError: false,
		},
		{
			name: "invalid crawl bounds",
			setupConfig: func(cfg *Config) {
				cfg.Crawl.MaxDepth = -1
				cfg.Crawl.MaxPages = 0
				cfg.Crawl.MaxLinksPerPage = 0
			},
			expectError: true,
			errorContains: []string{
				"max depth cannot be negative",
				"max pages must be positive",
				"max links per page must be positive",
			},
		},
		{
			name: "invalid download settings",
			setupConfig: func(cfg *Config) {
				cfg.Download.Workers = 0
				cfg.Download.DownloadTimeout = 0
			},
			expectError: true,
			errorContains: []string{
				"workers must be positive",
				"download timeout must be positive",
			},
		},
		{
			name: "too many workers",
			setupConfig: func(cfg *Config) {
				cfg.Download.Workers = 32
			},
			expectError:   true,
			errorContains: []string{"workers should not exceed 16"},
		},
		{
			name: "invalid dedup settings",
			setupConfig: func(cfg *Config) {
				cfg.Dedup.HashAlgorithm = "crc32"
				cfg.Dedup.DuplicatesFolder = ""
			},
			expectError: true,
			errorContains: []string{
				"invalid hash algorithm",
				"duplicates folder is required",
			},
		},
		{
			name: "invalid rate limit",
			setupConfig: func(cfg *Config) {
				cfg.RateLimit.RequestsPerMinute = -1
				cfg.RateLimit.BurstSize = 0
				cfg.RateLimit.MaxRetries = -1
			},
			expectError: true,
			errorContains: []string{
				"requests per minute must be positive",
				"burst size must be positive",
				"max retries cannot be negative",
			},
		},
		{
			name: "invalid output settings",
			setupConfig: func(cfg *Config) {
				cfg.Output.BaseDirectory = ""
			},
			expectError:   true,
			errorContains: []string{"output directory is required"},
		},
		{
			name: "invalid log level",
			setupConfig: func(cfg *Config) {
				cfg.Logging.Level = "invalid"
			},
			expectError:   true,
			errorContains: []string{"invalid log level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.setupConfig(cfg)

			err := cfg.Validate()

			if tt.expectError {
				assert.Error(t, err)
				for _, contains := range tt.errorContains {
					assert.Contains(t, err.Error(), contains)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSave(t *testing.T) {
	t.Run("save to new file", func(t *testing.T) {
		tempDir := t.TempDir()
		configPath := filepath.Join(tempDir, "saved_config.yaml")

		cfg := DefaultConfig()
		cfg.Output.BaseDirectory = "/save/test"
		cfg.Crawl.MaxDepth = 5

		err := cfg.Save(configPath)
		require.NoError(t, err)

		// Verify file exists
		_, err = os.Stat(configPath)
		assert.NoError(t, err)

		// Load and verify
		loadedCfg := DefaultConfig()
		err = loadedCfg.LoadFromFile(configPath)
		require.NoError(t, err)

		assert.Equal(t, cfg.Output.BaseDirectory, loadedCfg.Output.BaseDirectory)
		assert.Equal(t, cfg.Crawl.MaxDepth, loadedCfg.Crawl.MaxDepth)
	})

	t.Run("creates directory if needed", func(t *testing.T) {
		tempDir := t.TempDir()
		configPath := filepath.Join(tempDir, "subdir", "config.yaml")

		cfg := DefaultConfig()
		err := cfg.Save(configPath)
		require.NoError(t, err)

		// Verify directory was created
		_, err = os.Stat(filepath.Dir(configPath))
		assert.NoError(t, err)
	})

	t.Run("overwrites existing file", func(t *testing.T) {
		tempDir := t.TempDir()
		configPath := filepath.Join(tempDir, "config.yaml")

		// Create initial file
		cfg1 := DefaultConfig()
		cfg1.Output.BaseDirectory = "/first"
		err := cfg1.Save(configPath)
		require.NoError(t, err)

		// Overwrite with new config
		cfg2 := DefaultConfig()
		cfg2.Output.BaseDirectory = "/second"
		err = cfg2.Save(configPath)
		require.NoError(t, err)

		// Load and verify
		loadedCfg := DefaultConfig()
		err = loadedCfg.LoadFromFile(configPath)
		require.NoError(t, err)

		assert.Equal(t, "/second", loadedCfg.Output.BaseDirectory)
	})
}

func TestLoad(t *testing.T) {
	t.Run("precedence order", func(t *testing.T) {
		tempDir := t.TempDir()

		// Create config file
		configPath := filepath.Join(tempDir, "config.yaml")
		configContent := `
crawl:
  max_depth: 3
output:
  base_directory: /file/output
`
		err := os.WriteFile(configPath, []byte(configContent), 0644)
		require.NoError(t, err)

		// Set environment variables
		os.Setenv("MEDIAHARVEST_OUTPUT_DIR", "/env/output")
		defer os.Unsetenv("MEDIAHARVEST_OUTPUT_DIR")

		// Command line flags
		flags := map[string]interface{}{
			"output": "/flag/output",
		}

		cfg, err := Load(configPath, flags)
		require.NoError(t, err)

		// Verify precedence: flags > env > file > defaults
		assert.Equal(t, "/flag/output", cfg.Output.BaseDirectory) // From flags
		assert.Equal(t, 3, cfg.Crawl.MaxDepth)                    // From file (no env or flag)
	})

	t.Run("validation failure", func(t *testing.T) {
		flags := map[string]interface{}{
			"hash-algorithm": "sha256", // Not a supported perceptual algorithm
		}

		cfg, err := Load("", flags)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "configuration validation failed")
		assert.Nil(t, cfg)
	})

	t.Run("loads .env file", func(t *testing.T) {
		tempDir := t.TempDir()
		oldDir, _ := os.Getwd()
		defer os.Chdir(oldDir)

		err := os.Chdir(tempDir)
		require.NoError(t, err)

		// Create .env file
		envContent := `MEDIAHARVEST_OUTPUT_DIR=/dotenv/output
MEDIAHARVEST_MAX_PAGES=33`
		err = os.WriteFile(".env", []byte(envContent), 0644)
		require.NoError(t, err)

		// Clear any existing env vars
		os.Unsetenv("MEDIAHARVEST_OUTPUT_DIR")
		os.Unsetenv("MEDIAHARVEST_MAX_PAGES")
		defer os.Unsetenv("MEDIAHARVEST_OUTPUT_DIR")
		defer os.Unsetenv("MEDIAHARVEST_MAX_PAGES")

		cfg, err := Load("", nil)
		require.NoError(t, err)

		assert.Equal(t, "/dotenv/output", cfg.Output.BaseDirectory)
		assert.Equal(t, 33, cfg.Crawl.MaxPages)
	})
}

func TestConfigSerialization(t *testing.T) {
	t.Run("yaml round trip", func(t *testing.T) {
		original := DefaultConfig()
		original.Output.BaseDirectory = "/round/trip"
		original.Crawl.MaxPages = 45
		original.Download.Workers = 8
		original.Dedup.HashAlgorithm = "dhash"

		// Marshal to YAML
		data, err := yaml.Marshal(original)
		require.NoError(t, err)

		// Unmarshal back
		var loaded Config
		err = yaml.Unmarshal(data, &loaded)
		require.NoError(t, err)

		// Compare key fields
		assert.Equal(t, original.Output.BaseDirectory, loaded.Output.BaseDirectory)
		assert.Equal(t, original.Crawl.MaxPages, loaded.Crawl.MaxPages)
		assert.Equal(t, original.Download.Workers, loaded.Download.Workers)
		assert.Equal(t, original.Dedup.HashAlgorithm, loaded.Dedup.HashAlgorithm)
	})
}

func TestDurationParsing(t *testing.T) {
	t.Run("parse duration from yaml", func(t *testing.T) {
		yamlContent := `
rate_limit:
  retry_delay: 10s
  default_page_delay: 2500ms
download:
  download_timeout: 45s
browser:
  navigation_timeout: 1m30s
session:
  ttl: 72h
`
		var cfg Config
		err := yaml.Unmarshal([]byte(yamlContent), &cfg)
		require.NoError(t, err)

		assert.Equal(t, 10*time.Second, cfg.RateLimit.RetryDelay)
		assert.Equal(t, 2500*time.Millisecond, cfg.RateLimit.DefaultPageDelay)
		assert.Equal(t, 45*time.Second, cfg.Download.DownloadTimeout)
		assert.Equal(t, 90*time.Second, cfg.Browser.NavigationTimeout)
		assert.Equal(t, 72*time.Hour, cfg.Session.TTL)
	})
}

// Benchmark tests
func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}

func BenchmarkValidate(b *testing.B) {
	cfg := DefaultConfig()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = cfg.Validate()
	}
}

func BenchmarkLoadFromEnv(b *testing.B) {
	os.Setenv("MEDIAHARVEST_OUTPUT_DIR", "/bench/output")
	os.Setenv("MEDIAHARVEST_WORKERS", "8")
	defer os.Unsetenv("MEDIAHARVEST_OUTPUT_DIR")
	defer os.Unsetenv("MEDIAHARVEST_WORKERS")

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		cfg := DefaultConfig()
		_ = cfg.LoadFromEnv()
	}
}

func BenchmarkSaveAndLoad(b *testing.B) {
	tempDir := b.TempDir()
	configPath := filepath.Join(tempDir, "bench_config.yaml")

	cfg := DefaultConfig()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = cfg.Save(configPath)
		loadedCfg := DefaultConfig()
		_ = loadedCfg.LoadFromFile(configPath)
	}
}
