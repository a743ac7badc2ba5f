package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DiskCache is the persistent tier. Entries live under
// {dir}/{namespace}/{md5}.cache and are safe to delete at any time.
type DiskCache struct {
	dir string
}

type diskEntry struct {
	ExpiresAt int64  `json:"expires_at"`
	Value     []byte `json:"value"`
}

func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) path(namespace, key string) string {
	return filepath.Join(c.dir, namespace, hashHex(key)+".cache")
}

func (c *DiskCache) Get(namespace, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(c.path(namespace, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var entry diskEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt entry; drop it.
		_ = os.Remove(c.path(namespace, key))
		return nil, false, nil
	}

	if entry.ExpiresAt > 0 && time.Now().Unix() > entry.ExpiresAt {
		_ = os.Remove(c.path(namespace, key))
		return nil, false, nil
	}

	return entry.Value, true, nil
}

func (c *DiskCache) Set(namespace, key string, value []byte, ttl time.Duration) error {
	if err := os.MkdirAll(filepath.Join(c.dir, namespace), 0o755); err != nil {
		return err
	}

	entry := diskEntry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl).Unix()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	path := c.path(namespace, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ClearNamespace removes every entry in a namespace.
func (c *DiskCache) ClearNamespace(namespace string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(c.dir, namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".cache" {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, namespace, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
