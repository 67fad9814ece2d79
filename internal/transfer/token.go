package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ytget/episode-downloader/internal/model"
)

// TokenVersion is the current resume token format
const TokenVersion = 1

// TokenSuffix is appended to the destination base name to name its token
const TokenSuffix = ".resume.json"

// Range is a half-open byte range [Start, End)
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// ResumeToken records the bytes received so far for one destination file
type ResumeToken struct {
	Version    int       `json:"version"`
	Path       string    `json:"path"`
	Source     string    `json:"source"`
	TotalBytes int64     `json:"total_bytes"`
	Ranges     []Range   `json:"ranges"`
	SavedAt    time.Time `json:"saved_at"`
}

// NewToken creates an empty token for a destination and source
func NewToken(path, source string) *ResumeToken {
	return &ResumeToken{Version: TokenVersion, Path: path, Source: source}
}

// TokenPath returns <dir>/<base-without-ext>.resume.json for a destination path
func TokenPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(path), base+TokenSuffix)
}

// Received returns the length of the contiguous prefix starting at byte 0
func (t *ResumeToken) Received() int64 {
	var end int64
	for _, r := range t.normalized() {
		if r.Start > end {
			break
		}
		if r.End > end {
			end = r.End
		}
	}
	return end
}

// Add records [start, end) as received
func (t *ResumeToken) Add(start, end int64) {
	if end <= start {
		return
	}
	t.Ranges = append(t.Ranges, Range{Start: start, End: end})
	t.Ranges = t.normalized()
}

// Reset forgets every received range
func (t *ResumeToken) Reset() {
	t.Ranges = nil
	t.TotalBytes = 0
}

// normalized returns the ranges sorted and merged
func (t *ResumeToken) normalized() []Range {
	if len(t.Ranges) == 0 {
		return nil
	}
	ranges := make([]Range, 0, len(t.Ranges))
	for _, r := range t.Ranges {
		if r.End > r.Start {
			ranges = append(ranges, r)
		}
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	merged := ranges[:0]
	for _, r := range ranges {
		if n := len(merged); n > 0 && r.Start <= merged[n-1].End {
			if r.End > merged[n-1].End {
				merged[n-1].End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Valid reports whether the token can resume the transfer to path given the
// current on-disk length of the partial file.
func (t *ResumeToken) Valid(path string, onDisk int64) bool {
	if t.Version != TokenVersion || t.Path != path {
		return false
	}
	received := t.Received()
	if received <= 0 || onDisk < received {
		return false
	}
	if t.TotalBytes > 0 && received > t.TotalBytes {
		return false
	}
	return true
}

// LoadToken reads the token at tokenPath
func LoadToken(tokenPath string) (*ResumeToken, error) {
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading resume token %s: %w", tokenPath, model.ErrNotFound)
		}
		return nil, fmt.Errorf("loading resume token %s: %w", tokenPath, err)
	}

	var token ResumeToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: resume token %s: %v", model.ErrCorruptData, tokenPath, err)
	}
	return &token, nil
}

// Save writes the token next to its destination
func (t *ResumeToken) Save(now time.Time) error {
	t.SavedAt = now
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding resume token: %w", err)
	}

	tokenPath := TokenPath(t.Path)
	tmp := tokenPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing resume token: %w", err)
	}
	if err := os.Rename(tmp, tokenPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing resume token: %w", err)
	}
	return nil
}

// RemoveToken deletes the token of the destination path, if any
func RemoveToken(path string) error {
	err := os.Remove(TokenPath(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing resume token: %w", err)
	}
	return nil
}
