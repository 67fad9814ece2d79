package config

import (
	"os"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"

	"github.com/ytget/episode-downloader/internal/platform"
	"github.com/ytget/episode-downloader/internal/retry"
)

// Settings keys for Fyne preferences
const (
	KeyDownloadDir     = "download_directory"
	KeyIndexURL        = "index_url"
	KeyMaxAttempts     = "max_attempts"
	KeyDownloadFillers = "download_fillers"
)

// Default values
const (
	DefaultMaxAttempts     = retry.DefaultMaxAttempts
	DefaultDownloadFillers = false
)

// Settings keeps the user-tunable subset of Config in the application
// preferences of a fyne front end.
type Settings struct {
	app fyne.App
}

// NewSettings creates a new settings manager
func NewSettings(app fyne.App) *Settings {
	return &Settings{app: app}
}

// GetDownloadDirectory returns the configured download directory
func (s *Settings) GetDownloadDirectory() string {
	dir := s.app.Preferences().String(KeyDownloadDir)
	if dir == "" {
		defaultDir, err := platform.DefaultDownloadDir(s.GetIndexURL())
		if err != nil {
			defaultDir = filepath.Join(os.TempDir(), platform.DefaultSeriesDirName)
		}
		s.SetDownloadDirectory(defaultDir)
		return defaultDir
	}
	return dir
}

// SetDownloadDirectory sets the download directory
func (s *Settings) SetDownloadDirectory(dir string) {
	s.app.Preferences().SetString(KeyDownloadDir, dir)
}

// GetIndexURL returns the index page of the series
func (s *Settings) GetIndexURL() string {
	return s.app.Preferences().String(KeyIndexURL)
}

// SetIndexURL sets the index page of the series
func (s *Settings) SetIndexURL(indexURL string) {
	s.app.Preferences().SetString(KeyIndexURL, strings.TrimSpace(indexURL))
}

// GetMaxAttempts returns the number of attempts per item and run
func (s *Settings) GetMaxAttempts() int {
	value := s.app.Preferences().Int(KeyMaxAttempts)
	if value <= 0 {
		s.SetMaxAttempts(DefaultMaxAttempts)
		return DefaultMaxAttempts
	}
	return value
}

// SetMaxAttempts sets the number of attempts per item and run
func (s *Settings) SetMaxAttempts(count int) {
	if count < MinMaxAttempts {
		count = MinMaxAttempts
	}
	if count > MaxMaxAttempts {
		count = MaxMaxAttempts
	}
	s.app.Preferences().SetInt(KeyMaxAttempts, count)
}

// GetDownloadFillers returns whether filler items are downloaded
func (s *Settings) GetDownloadFillers() bool {
	return s.app.Preferences().BoolWithFallback(KeyDownloadFillers, DefaultDownloadFillers)
}

// SetDownloadFillers sets whether filler items are downloaded
func (s *Settings) SetDownloadFillers(download bool) {
	s.app.Preferences().SetBool(KeyDownloadFillers, download)
}

// Apply overlays the stored preferences on c. Preferences that were never
// set leave c alone.
func (s *Settings) Apply(c *Config) {
	prefs := s.app.Preferences()
	if dir := prefs.String(KeyDownloadDir); dir != "" {
		c.DownloadDir = dir
	}
	if indexURL := prefs.String(KeyIndexURL); indexURL != "" {
		c.IndexURL = indexURL
	}
	if attempts := prefs.Int(KeyMaxAttempts); attempts > 0 {
		c.MaxAttempts = attempts
	}
	c.DownloadFillers = prefs.BoolWithFallback(KeyDownloadFillers, c.DownloadFillers)
}

// Save stores the user-tunable subset of c
func (s *Settings) Save(c Config) {
	if c.DownloadDir != "" {
		s.SetDownloadDirectory(c.DownloadDir)
	}
	if c.IndexURL != "" {
		s.SetIndexURL(c.IndexURL)
	}
	s.SetMaxAttempts(c.MaxAttempts)
	s.SetDownloadFillers(c.DownloadFillers)
}
