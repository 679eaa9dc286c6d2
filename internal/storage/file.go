package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"autostock/internal/errs"
)

const backupSuffix = ".bak"

// FileStore keeps each key as <Dir>/<key>.json next to a <key>.json.bak backup.
type FileStore struct {
	Dir string

	mu sync.Mutex
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("storage key %q: %w", key, errs.ErrPersistence)
	}
	return filepath.Join(s.Dir, filepath.FromSlash(key)+".json"), nil
}

func (s *FileStore) Load(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, primaryErr := os.ReadFile(p)
	if primaryErr == nil && json.Valid(data) {
		return data, nil
	}
	bak, bakErr := os.ReadFile(p + backupSuffix)
	if bakErr != nil {
		if errors.Is(primaryErr, fs.ErrNotExist) && errors.Is(bakErr, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		if primaryErr == nil {
			primaryErr = errors.New("corrupt primary")
		}
		return nil, fmt.Errorf("load %s: %v: %w", key, primaryErr, errs.ErrPersistence)
	}
	if !json.Valid(bak) {
		return nil, fmt.Errorf("load %s: primary and backup unreadable: %w", key, errs.ErrPersistence)
	}
	if err := writeAtomic(p, bak); err != nil {
		return nil, fmt.Errorf("restore %s from backup: %v: %w", key, err, errs.ErrPersistence)
	}
	return bak, nil
}

func (s *FileStore) Save(ctx context.Context, key string, data []byte) error {
	_ = ctx
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("save %s: %v: %w", key, err, errs.ErrPersistence)
	}
	tmp, err := writeTemp(p, data)
	if err != nil {
		return fmt.Errorf("save %s: %v: %w", key, err, errs.ErrPersistence)
	}
	if err := backupIfValid(p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("backup %s: %v: %w", key, err, errs.ErrPersistence)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %v: %w", key, err, errs.ErrPersistence)
	}
	return nil
}

func (s *FileStore) Backup(ctx context.Context, key string) error {
	_ = ctx
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := copyFile(p, p+backupSuffix); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("backup %s: %v: %w", key, err, errs.ErrPersistence)
	}
	return nil
}

func (s *FileStore) Restore(ctx context.Context, key string) error {
	_ = ctx
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bak, err := os.ReadFile(p + backupSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("restore %s: %v: %w", key, err, errs.ErrPersistence)
	}
	if err := writeAtomic(p, bak); err != nil {
		return fmt.Errorf("restore %s: %v: %w", key, err, errs.ErrPersistence)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range []string{p, p + backupSuffix} {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %v: %w", key, err, errs.ErrPersistence)
		}
	}
	return nil
}

func writeTemp(target string, data []byte) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".tmp-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func writeAtomic(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp, err := writeTemp(target, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return writeAtomic(dst, data)
}

// backupIfValid copies the current primary over the backup unless the primary
// is missing or corrupt, so a torn primary never replaces a good backup.
func backupIfValid(primary string) error {
	data, err := os.ReadFile(primary)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if !json.Valid(data) {
		return nil
	}
	return writeAtomic(primary+backupSuffix, data)
}
