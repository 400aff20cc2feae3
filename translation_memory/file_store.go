package translation_memory

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/morler/repo-translate/translation_memory/contracts"
	"github.com/zeebo/xxh3"
)

const entrySuffix = ".tm"

// Entry is one remembered translation.
type Entry struct {
	Scope       string
	TargetLang  string
	Source      string
	Translation string
	Timestamp   time.Time
}

// FileStore keeps one gob-encoded entry per file, named by the xxh3 hash of
// the lookup key.
type FileStore struct {
	dir   string
	scope string
	mutex sync.RWMutex
	perf  *performance
}

// NewFileStore opens a file-backed store under dir. scope separates entries
// produced by different providers or models.
func NewFileStore(dir, scope string) (contracts.IStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("translation memory directory is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{dir: dir, scope: scope, perf: newPerformance()}, nil
}

func (s *FileStore) key(targetLang, source string) string {
	return fmt.Sprintf("%016x%s", xxh3.HashString(s.scope+"\x00"+targetLang+"\x00"+source), entrySuffix)
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key[:2], key)
}

// Get returns the remembered translation. A hash collision or an unreadable
// entry counts as a miss.
func (s *FileStore) Get(ctx context.Context, targetLang, source string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mutex.RLock()
	data, err := os.ReadFile(s.path(s.key(targetLang, source)))
	s.mutex.RUnlock()
	if err != nil {
		s.perf.recordMiss()
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		s.perf.recordMiss()
		return "", false, nil
	}
	if entry.Scope != s.scope || entry.TargetLang != targetLang || entry.Source != source {
		s.perf.recordMiss()
		return "", false, nil
	}
	s.perf.recordHit()
	return entry.Translation, true, nil
}

// Put stores a translation, replacing any previous one.
func (s *FileStore) Put(ctx context.Context, targetLang, source, translation string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := Entry{
		Scope:       s.scope,
		TargetLang:  targetLang,
		Source:      source,
		Translation: translation,
		Timestamp:   time.Now(),
	}
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(entry); err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	path := s.path(s.key(targetLang, source))
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buffer.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	s.perf.recordWrite()
	return nil
}

// Clear removes every entry.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	s.perf.reset()
	return os.MkdirAll(s.dir, 0755)
}

// Stats reports entry count, disk usage and lookup counters.
func (s *FileStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var files int
	var size int64
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), entrySuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		size += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan cache: %w", err)
	}

	stats := map[string]interface{}{
		"cache_enabled": true,
		"backend":       "file",
		"cache_dir":     s.dir,
		"cache_files":   files,
		"total_size":    size,
	}
	s.perf.snapshot(stats)
	return stats, nil
}

func (s *FileStore) Close() error { return nil }
