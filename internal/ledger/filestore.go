package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/echosec/advisory-pipeline/internal/models"
)

// FileStore is a Store persisted as a single JSON document. History loads
// fully on open and is written back on Flush via a temp-file rename, so a
// crashed run leaves the previous ledger intact.
type FileStore struct {
	path string
	mem  *MemoryStore
}

// ledgerFile is the on-disk shape.
type ledgerFile struct {
	SavedAt time.Time      `json:"saved_at"`
	Entries []models.Entry `json:"entries"`
}

// OpenFileStore loads the ledger at path, starting empty when the file does
// not exist yet.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, mem: NewMemoryStore()}

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger %s: %w", path, err)
	}
	var f ledgerFile
	if err := json.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", path, err)
	}
	fs.mem.load(f.Entries)
	return fs, nil
}

func (fs *FileStore) Current(advisoryID string) (models.Entry, bool) { return fs.mem.Current(advisoryID) }
func (fs *FileStore) History(advisoryID string) []models.Entry      { return fs.mem.History(advisoryID) }
func (fs *FileStore) AllCurrent() []models.Entry                    { return fs.mem.AllCurrent() }
func (fs *FileStore) At(advisoryID string, t time.Time) (models.Entry, bool) {
	return fs.mem.At(advisoryID, t)
}
func (fs *FileStore) Transition(advisoryID string, closedAt time.Time, entry models.Entry) {
	fs.mem.Transition(advisoryID, closedAt, entry)
}

// Flush writes the full ledger to disk atomically.
func (fs *FileStore) Flush() error {
	f := ledgerFile{SavedAt: time.Now().UTC(), Entries: fs.mem.snapshot()}
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	if dir := filepath.Dir(fs.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create ledger dir: %w", err)
		}
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}
