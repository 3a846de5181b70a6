package kv

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"

	"github.com/bryanwahyu/threat-analyzer/internal/domain/storage"
)

// File keeps one file per key in a directory. Writes go through a temp file
// and a rename so a crash never leaves a half written partition.
type File struct {
	dir string
}

func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create storage dir %s", dir)
	}
	return &File{dir: dir}, nil
}

var plainKey = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// path maps a key to a file name; keys outside the safe alphabet are hex encoded.
func (f *File) path(key string) string {
	name := key
	if !plainKey.MatchString(key) || key == "." || key == ".." {
		name = "x-" + hex.EncodeToString([]byte(key))
	}
	return filepath.Join(f.dir, name+".json")
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	return b, nil
}

func (f *File) Set(_ context.Context, key string, value []byte) error {
	target := f.path(key)
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "write %s", key)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "write %s", key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "write %s", key)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "write %s", key)
	}
	return nil
}

func (f *File) Remove(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "remove %s", key)
	}
	return nil
}
