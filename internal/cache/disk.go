package cache

import (
	"fmt"
	"os"
	"path/filepath"
)

// diskCache is the optional third tier: a plain file per key, named after
// the key's hash, under a configured directory. Adapted from the original
// source's DiskCache (pickle-file-per-key); Go serializes the raw bytes
// the caller already produced instead of re-encoding.
type diskCache struct {
	dir string
}

func newDiskCache(dir string) *diskCache {
	if dir == "" {
		return nil
	}
	return &diskCache{dir: dir}
}

func (d *diskCache) path(key string) string {
	return filepath.Join(d.dir, hashHex(key)+".cache")
}

func (d *diskCache) get(key string) ([]byte, bool) {
	if d == nil {
		return nil, false
	}
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (d *diskCache) set(key string, value []byte) error {
	if d == nil {
		return nil
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(d.path(key), value, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	return nil
}

func (d *diskCache) delete(key string) {
	if d == nil {
		return
	}
	_ = os.Remove(d.path(key))
}
