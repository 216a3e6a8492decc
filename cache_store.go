package soletic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	cacheFilename   = "soletic_cache.json"
	defaultCacheDir = ".soletic_cache"
)

// FileStore keeps deployment timestamps in a single JSON object on disk,
// loaded fully when opened and rewritten fully on every Put. It assumes a
// single writing process.
type FileStore struct {
	path    string
	logger  Logger
	mu      sync.Mutex
	entries map[string]int64
}

// DefaultCacheFilePath resolves SOLETIC_CACHE_DIR (relative to the home
// directory unless absolute) and appends the cache file name.
func DefaultCacheFilePath() (string, error) {
	dir := os.Getenv(CacheDirEnv)
	if dir == "" {
		dir = defaultCacheDir
	}
	if !filepath.IsAbs(dir) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, dir)
	}
	return filepath.Join(dir, cacheFilename), nil
}

// OpenFileStore creates the cache directory if needed and loads the file at
// path. A missing or corrupted file yields an empty store.
func OpenFileStore(path string, logger Logger) (*FileStore, error) {
	if logger == nil {
		logger = NewDiscardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	store := &FileStore{
		path:    path,
		logger:  logger,
		entries: make(map[string]int64),
	}
	store.loadFromDisk()
	return store, nil
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *FileStore) Get(key CacheKey) (int64, bool) {
	if s == nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.entries[key.String()]
	return value, ok
}

func (s *FileStore) Put(key CacheKey, timestamp int64) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key.String()] = timestamp
	return s.persistLocked()
}

// EvictIfNeeded is a no-op: the persisted tier is unbounded.
func (s *FileStore) EvictIfNeeded() {}

// Len reports the number of persisted entries.
func (s *FileStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear drops every entry and removes the backing file.
func (s *FileStore) Clear() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]int64)
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	s.logger.Printf("cache cleared path=%s", s.path)
	return nil
}

func (s *FileStore) loadFromDisk() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warnf("cache read warning path=%s error=%v", s.path, err)
		} else {
			s.logger.Debugf("no existing cache file path=%s", s.path)
		}
		return
	}

	var raw map[string]json.Number
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		// Older files may hold error strings next to timestamps; salvage the numbers.
		var loose map[string]any
		looseDecoder := json.NewDecoder(bytes.NewReader(data))
		looseDecoder.UseNumber()
		if looseErr := looseDecoder.Decode(&loose); looseErr != nil {
			s.logger.Debugf("cache file corrupted path=%s error=%v", s.path, err)
			return
		}
		raw = make(map[string]json.Number, len(loose))
		for key, value := range loose {
			if number, ok := value.(json.Number); ok {
				raw[key] = number
			}
		}
	}

	for key, number := range raw {
		value, err := number.Int64()
		if err != nil {
			s.logger.Debugf("cache skip key=%s value=%s", key, number)
			continue
		}
		s.entries[key] = value
	}
	s.logger.Debugf("cache read complete path=%s entries=%d", s.path, len(s.entries))
}

func (s *FileStore) persistLocked() error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(s.entries); err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := writeFileAtomic(s.path, "soletic-cache-*.tmp", buf.Bytes()); err != nil {
		s.logger.Warnf("cache write warning path=%s error=%v", s.path, err)
		return err
	}
	s.logger.Debugf("cache write complete path=%s entries=%d", s.path, len(s.entries))
	return nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path, pattern string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), pattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
