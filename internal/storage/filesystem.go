package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const metaSuffix = ".meta.json"

// FilesystemStorage implements ObjectStore over a local directory. Object
// metadata is kept in a sidecar file next to each object.
type FilesystemStorage struct {
	baseDir string
}

// NewFilesystemStorage creates a new filesystem store rooted at baseDir
func NewFilesystemStorage(baseDir string) (*FilesystemStorage, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, Error.New("create base directory: %v", err)
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return &FilesystemStorage{
		baseDir: abs,
	}, nil
}

// resolve maps key to a path inside the base directory
func (fs *FilesystemStorage) resolve(key string) (string, error) {
	if key == "" || strings.HasSuffix(key, metaSuffix) {
		return "", Error.New("invalid key %q", key)
	}
	path := filepath.Join(fs.baseDir, filepath.FromSlash(key))

	// Security: prevent directory traversal
	rel, err := filepath.Rel(fs.baseDir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", Error.New("invalid key %q: path traversal detected", key)
	}
	return path, nil
}

// Exists checks if an object exists at the given key
func (fs *FilesystemStorage) Exists(ctx context.Context, key string) (bool, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, Error.New("stat %s: %v", key, err)
	}
	if info.IsDir() {
		return false, nil
	}

	return true, nil
}

// Fetch reads the object at the given key
func (fs *FilesystemStorage) Fetch(ctx context.Context, key string) ([]byte, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound.Wrap(fmt.Errorf("%s: %w", key, err))
		}
		return nil, Error.Wrap(fmt.Errorf("read %s: %w", key, err))
	}

	return data, nil
}

// Store writes data and then its metadata sidecar. Each file is written to a
// temporary file first and renamed into place, so a failed object write
// leaves no sidecar behind.
func (fs *FilesystemStorage) Store(ctx context.Context, key string, data []byte, meta Metadata) error {
	path, err := fs.resolve(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Error.New("create directory for %s: %v", key, err)
	}

	meta.Size = int64(len(data))
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Error.Wrap(err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return Error.New("write %s: %v", key, err)
	}
	if err := writeFileAtomic(path+metaSuffix, metaJSON); err != nil {
		return Error.New("write metadata for %s: %v", key, err)
	}

	return nil
}

// GetMetadata returns metadata for the object at the given key
func (fs *FilesystemStorage) GetMetadata(ctx context.Context, key string) (*Metadata, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound.Wrap(fmt.Errorf("%s: %w", key, err))
		}
		return nil, Error.New("stat %s: %v", key, err)
	}

	meta := &Metadata{}
	raw, err := os.ReadFile(path + metaSuffix)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, meta); err != nil {
			return nil, Error.New("decode metadata for %s: %v", key, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, Error.New("read metadata for %s: %v", key, err)
	}
	meta.Size = info.Size()

	return meta, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
