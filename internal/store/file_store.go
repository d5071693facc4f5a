package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps client state in a small JSON file so the CLI remembers the
// device between runs. Processed-id marks stay in memory.
type FileStore struct {
	*MemoryStore
	path    string
	flushMu sync.Mutex
}

// DefaultFilePath returns ~/.config/matrixpanel/state.json (or the platform
// equivalent).
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "matrixpanel", "state.json"), nil
}

func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}

	fs := &FileStore{MemoryStore: NewMemoryStore(), path: path}
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	if len(content) == 0 {
		return fs, nil
	}
	var values map[string]string
	if err := json.Unmarshal(content, &values); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	// A "null" file decodes to a nil map.
	if values != nil {
		fs.values = values
	}
	return fs, nil
}

func (f *FileStore) SetDeviceHost(ctx context.Context, host string) error {
	_ = f.MemoryStore.SetDeviceHost(ctx, host)
	return f.flush()
}

func (f *FileStore) SetTheme(ctx context.Context, theme string) error {
	_ = f.MemoryStore.SetTheme(ctx, theme)
	return f.flush()
}

func (f *FileStore) SetPreferences(ctx context.Context, prefs Preferences) error {
	if err := f.MemoryStore.SetPreferences(ctx, prefs); err != nil {
		return err
	}
	return f.flush()
}

func (f *FileStore) flush() error {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()

	f.mu.RLock()
	data, err := json.MarshalIndent(f.values, "", "  ")
	f.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}
