package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ytget/episode-downloader/internal/model"
)

// FileName is the fixed name of the checkpoint inside a download directory
const FileName = "checkpoint.json"

const filePermissions = 0644

// Store persists catalogs as checkpoint files. Saves through one Store are
// serialized, so share a single Store per process.
type Store struct {
	mu sync.Mutex
}

// NewStore creates a new checkpoint store
func NewStore() *Store {
	return &Store{}
}

// Path returns the checkpoint location for dir
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Exists reports whether a checkpoint file exists in dir
func (s *Store) Exists(dir string) bool {
	stat, err := os.Stat(Path(dir))
	return err == nil && !stat.IsDir()
}

// Load reads the checkpoint in dir
func (s *Store) Load(dir string) (*model.Catalog, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading checkpoint from %s: %w", dir, model.ErrNotFound)
		}
		return nil, fmt.Errorf("loading checkpoint from %s: %w", dir, err)
	}

	catalog := model.NewCatalog("")
	if err := json.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", model.ErrCorruptData, Path(dir), err)
	}
	return catalog, nil
}

// Save writes catalog to dir. The document is written to a temporary file in
// the same directory and renamed over the checkpoint. The snapshot is taken
// under the store lock, so a later save never writes an older catalog.
func (s *Store) Save(dir string, catalog *model.Catalog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding catalog: %v", model.ErrCheckpointWrite, err)
	}

	if err := writeFileAtomic(Path(dir), data); err != nil {
		return fmt.Errorf("%w: %v", model.ErrCheckpointWrite, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// SizeFunc returns the on-disk length of path
type SizeFunc func(path string) (int64, error)

// Reconcile clears the completed flag of every item whose destination does not
// hold exactly TotalBytes. It returns the corrected ordinals in order.
func Reconcile(catalog *model.Catalog, sizeOf SizeFunc) []int {
	var corrected []int
	for _, item := range catalog.All() {
		if !item.Completed || Verified(item, sizeOf) {
			continue
		}
		// the ordinal comes from catalog.All, so Update cannot miss it
		_ = catalog.Update(item.Ordinal, func(it *model.Item) {
			it.Completed = false
		})
		corrected = append(corrected, item.Ordinal)
	}
	return corrected
}

// Verified reports whether the destination of item holds exactly TotalBytes
func Verified(item model.Item, sizeOf SizeFunc) bool {
	if item.Path == "" || item.TotalBytes == 0 {
		return false
	}
	size, err := sizeOf(item.Path)
	if err != nil {
		return false
	}
	return size == item.TotalBytes
}
