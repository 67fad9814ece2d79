package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/ytget/episode-downloader/internal/model"
	"github.com/ytget/episode-downloader/internal/platform"
	"github.com/ytget/episode-downloader/internal/retry"
)

const (
	// EnvPrefix prefixes every environment override, e.g. EPISODEDL_INDEX_URL
	EnvPrefix = "EPISODEDL"
	// FileEnv names the environment variable that points at the config file
	FileEnv = EnvPrefix + "_CONFIG_FILE"

	appName = "episode-downloader"
)

// Log formats
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Bounds applied by Validate
const (
	MinMaxAttempts  = 1
	MaxMaxAttempts  = 1000
	MinSaveInterval = time.Second
	MaxSaveInterval = 5 * time.Minute
	MinReadTimeout  = time.Second
)

// Config is the run configuration. Values come from Default, then the YAML
// file, then the environment.
type Config struct {
	IndexURL        string        `envconfig:"INDEX_URL"        yaml:"indexURL"`
	DownloadDir     string        `envconfig:"DOWNLOAD_DIR"     yaml:"downloadDir"`
	DownloadFillers bool          `envconfig:"DOWNLOAD_FILLERS" yaml:"downloadFillers"`
	SkipCategories  []string      `envconfig:"SKIP_CATEGORIES"  yaml:"skipCategories"`
	MaxAttempts     int           `envconfig:"MAX_ATTEMPTS"     yaml:"maxAttempts"`
	RetryDelayMin   time.Duration `envconfig:"RETRY_DELAY_MIN"  yaml:"retryDelayMin"`
	RetryDelayMax   time.Duration `envconfig:"RETRY_DELAY_MAX"  yaml:"retryDelayMax"`
	CooldownEvery   int           `envconfig:"COOLDOWN_EVERY"   yaml:"cooldownEvery"`
	Cooldown        time.Duration `envconfig:"COOLDOWN"         yaml:"cooldown"`
	SaveInterval    time.Duration `envconfig:"SAVE_INTERVAL"    yaml:"saveInterval"`
	ResponseTimeout time.Duration `envconfig:"RESPONSE_TIMEOUT" yaml:"responseTimeout"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT"     yaml:"readTimeout"`
	UserAgent       string        `envconfig:"USER_AGENT"       yaml:"userAgent"`
	ItemSelector    string        `envconfig:"ITEM_SELECTOR"    yaml:"itemSelector"`
	RowSelector     string        `envconfig:"ROW_SELECTOR"     yaml:"rowSelector"`
	CheckFreeSpace  bool          `envconfig:"CHECK_FREE_SPACE" yaml:"checkFreeSpace"`
	LogLevel        string        `envconfig:"LOG_LEVEL"        yaml:"logLevel"`
	LogFormat       string        `envconfig:"LOG_FORMAT"       yaml:"logFormat"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		MaxAttempts:     retry.DefaultMaxAttempts,
		RetryDelayMin:   retry.DefaultDelayMin,
		RetryDelayMax:   retry.DefaultDelayMax,
		CooldownEvery:   retry.DefaultCooldownEvery,
		Cooldown:        retry.DefaultCooldown,
		SaveInterval:    5 * time.Second,
		ResponseTimeout: 30 * time.Second,
		ReadTimeout:     time.Minute,
		CheckFreeSpace:  true,
		LogLevel:        log.InfoLevel.String(),
		LogFormat:       LogFormatText,
	}
}

// DefaultFile returns the config file location: $EPISODEDL_CONFIG_FILE or
// the user config dir.
func DefaultFile() string {
	if file := os.Getenv(FileEnv); file != "" {
		return file
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName, appName+".yaml")
}

// Load reads file over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(file string) (Config, error) {
	c := Default()
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return c, fmt.Errorf("reading config file: %w", err)
		}
		if err == nil {
			if err := yaml.UnmarshalStrict(data, &c); err != nil {
				return c, fmt.Errorf("unmarshaling config file: %w", err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return c, fmt.Errorf("parsing environment variables: %w", err)
	}

	return c, c.Validate()
}

// Validate clamps numeric settings into range and rejects unknown log
// settings.
func (c *Config) Validate() error {
	c.MaxAttempts = min(max(c.MaxAttempts, MinMaxAttempts), MaxMaxAttempts)
	c.RetryDelayMin = max(c.RetryDelayMin, 0)
	c.RetryDelayMax = max(c.RetryDelayMax, c.RetryDelayMin)
	c.CooldownEvery = max(c.CooldownEvery, 0)
	c.Cooldown = max(c.Cooldown, 0)
	c.SaveInterval = min(max(c.SaveInterval, MinSaveInterval), MaxSaveInterval)
	c.ResponseTimeout = max(c.ResponseTimeout, 0)
	c.ReadTimeout = max(c.ReadTimeout, MinReadTimeout)
	c.IndexURL = strings.TrimSpace(c.IndexURL)

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid configuration: logLevel / %s_LOG_LEVEL: %w", EnvPrefix, err)
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("invalid configuration: logFormat / %s_LOG_FORMAT: %q", EnvPrefix, c.LogFormat)
	}
	return nil
}

// Policy returns the retry policy
func (c *Config) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:   c.MaxAttempts,
		DelayMin:      c.RetryDelayMin,
		DelayMax:      c.RetryDelayMax,
		CooldownEvery: c.CooldownEvery,
		Cooldown:      c.Cooldown,
	}
}

// Skipped returns the categories left out of a run. Fillers are skipped
// unless DownloadFillers is set.
func (c *Config) Skipped() []model.Category {
	var skipped []model.Category
	if !c.DownloadFillers {
		skipped = append(skipped, model.CategoryFiller)
	}
	for _, name := range c.SkipCategories {
		category := model.Category(strings.ToLower(strings.TrimSpace(name)))
		if category == "" || slices.Contains(skipped, category) {
			continue
		}
		if category == model.CategoryFiller && c.DownloadFillers {
			continue
		}
		skipped = append(skipped, category)
	}
	return skipped
}

// Dir returns the download directory, derived from the index locator when
// none is configured.
func (c *Config) Dir() (string, error) {
	if c.DownloadDir != "" {
		return c.DownloadDir, nil
	}
	if c.IndexURL == "" {
		return "", fmt.Errorf("missing required configuration: downloadDir / %s_DOWNLOAD_DIR or indexURL / %s_INDEX_URL", EnvPrefix, EnvPrefix)
	}
	return platform.DefaultDownloadDir(c.IndexURL)
}

// ConfigureLogger applies level and format to logger
func (c *Config) ConfigureLogger(logger *log.Logger) error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	if c.LogFormat == LogFormatJSON {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
