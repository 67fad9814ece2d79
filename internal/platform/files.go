package platform

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gosimple/slug"
	"github.com/shirou/gopsutil/v3/disk"
)

// Operating system constants
const (
	OSDarwin  = "darwin"
	OSWindows = "windows"
	OSLinux   = "linux"
)

// File permissions
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// Command constants
const (
	OpenCommand     = "open"
	ExplorerCommand = "explorer"
	XDGOpenCommand  = "xdg-open"
)

// File manager names
var (
	LinuxFileManagers = []string{"nautilus", "dolphin", "thunar", "nemo", "pcmanfm"}
)

// Directory naming
const (
	DownloadsDirName     = "Downloads"
	DefaultSeriesDirName = "episodes"
	MaxSeriesDirLength   = 80
)

// ErrInsufficientSpace is returned when the volume cannot hold the remaining bytes
var ErrInsufficientSpace = errors.New("insufficient disk space")

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// DirExists reports whether path exists and is a directory
func DirExists(path string) (bool, error) {
	stat, err := os.Stat(path)
	if err == nil {
		if stat.IsDir() {
			return true, nil
		}
		return false, fmt.Errorf("%s exists but is not a directory", path)
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// FileExists checks if a regular file exists at the specified path
func FileExists(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && !stat.IsDir()
}

// FileSize returns the length of the file at path
func FileSize(path string) (int64, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if stat.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	return stat.Size(), nil
}

// GetHomeDownloadsDir returns the standard Downloads directory for the user
func GetHomeDownloadsDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, DownloadsDirName), nil
}

// SeriesDirName derives a stable directory name from an index locator
func SeriesDirName(indexURL string) string {
	name := indexURL
	if u, err := url.Parse(indexURL); err == nil && u.Host != "" {
		name = u.Host + " " + strings.ReplaceAll(strings.Trim(u.Path, "/"), "/", " ")
	}

	name = slug.Make(name)
	if name == "" {
		return DefaultSeriesDirName
	}
	if len(name) > MaxSeriesDirLength {
		name = strings.TrimRight(name[:MaxSeriesDirLength], "-")
	}
	return name
}

// DefaultDownloadDir returns <Downloads>/<series> for an index locator
func DefaultDownloadDir(indexURL string) (string, error) {
	base, err := GetHomeDownloadsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, SeriesDirName(indexURL)), nil
}

// FreeSpace returns the bytes available to the current user on the volume of path
func FreeSpace(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("reading disk usage for %s: %w", path, err)
	}
	return usage.Free, nil
}

// EnsureFreeSpace fails with ErrInsufficientSpace when the volume of dir
// cannot hold need more bytes. A need of zero or less always passes.
func EnsureFreeSpace(dir string, need int64) error {
	if need <= 0 {
		return nil
	}

	free, err := FreeSpace(dir)
	if err != nil {
		return err
	}
	if free < uint64(need) {
		return fmt.Errorf("%w: need %d bytes, %d available in %s", ErrInsufficientSpace, need, free, dir)
	}
	return nil
}

// OpenDirectory opens dir in the system file manager
func OpenDirectory(dir string) error {
	exists, err := DirExists(dir)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("directory does not exist: %s", dir)
	}

	absPath, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	switch runtime.GOOS {
	case OSDarwin:
		return exec.Command(OpenCommand, absPath).Run()
	case OSWindows:
		return exec.Command(ExplorerCommand, absPath).Run()
	case OSLinux:
		return openDirectoryLinux(absPath)
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// openDirectoryLinux tries xdg-open first, then the common file managers
func openDirectoryLinux(dir string) error {
	if err := exec.Command(XDGOpenCommand, dir).Run(); err == nil {
		return nil
	}

	for _, fm := range LinuxFileManagers {
		if _, err := exec.LookPath(fm); err == nil {
			return exec.Command(fm, dir).Run()
		}
	}

	return fmt.Errorf("no suitable file manager found")
}
