package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const tmpSuffix = ".tmp"

// Disk stores blobs as files in one directory, served statically under
// urlPrefix.
type Disk struct {
	dir       string
	urlPrefix string
}

// NewDisk creates dir if needed. urlPrefix is the public path the directory is
// mounted at, e.g. "/uploads".
func NewDisk(dir, urlPrefix string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &Disk{dir: dir, urlPrefix: "/" + strings.Trim(urlPrefix, "/")}, nil
}

// Dir returns the backing directory.
func (d *Disk) Dir() string {
	return d.dir
}

// Put streams r to <dir>/<name> through a temp file and an atomic rename.
// An existing file with the same name gets a short random suffix instead of
// being overwritten.
func (d *Disk) Put(_ context.Context, name string, r io.Reader, _ int64, _ string) (Object, error) {
	if name != filepath.Base(name) || name == "." || name == ".." {
		return Object{}, fmt.Errorf("invalid blob name %q", name)
	}
	if d.exists(name) {
		ext := filepath.Ext(name)
		name = strings.TrimSuffix(name, ext) + "-" + uuid.NewString()[:8] + ext
	}
	full := filepath.Join(d.dir, name)
	tmp := full + tmpSuffix

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return Object{}, fmt.Errorf("create temp file: %w", err)
	}
	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return Object{}, fmt.Errorf("write blob: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return Object{}, fmt.Errorf("sync blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return Object{}, fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return Object{}, fmt.Errorf("rename blob: %w", err)
	}
	info, err := os.Stat(full)
	if err != nil {
		return Object{}, fmt.Errorf("stat blob: %w", err)
	}
	return Object{Key: name, URL: d.url(name), Size: size, ModTime: info.ModTime()}, nil
}

// Open returns the blob's content. Callers close it.
func (d *Disk) Open(_ context.Context, key string) (io.ReadCloser, error) {
	full, err := d.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}
	return f, nil
}

// Delete removes the blob. Deleting a missing blob is not an error.
func (d *Disk) Delete(_ context.Context, key string) error {
	full, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

// List returns every finished blob in the directory.
func (d *Disk) List(_ context.Context) ([]Object, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("list upload dir: %w", err)
	}
	out := make([]Object, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), tmpSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Object{Key: e.Name(), URL: d.url(e.Name()), Size: info.Size(), ModTime: info.ModTime()})
	}
	return out, nil
}

func (d *Disk) url(name string) string {
	return path.Join(d.urlPrefix, name)
}

func (d *Disk) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(d.dir, key), nil
}

func (d *Disk) exists(name string) bool {
	_, err := os.Stat(filepath.Join(d.dir, name))
	return err == nil
}
