// Package archive packs a finished output root into a timestamped zip file.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"
)

// TimestampLayout formats the suffix of archive names.
const TimestampLayout = "20060102_150405"

// ErrNotDirectory is returned when the output root is not a directory.
var ErrNotDirectory = errors.New("output root is not a directory")

// Name returns the archive file name for root at the given time,
// <base>_<YYYYmmdd_HHMMSS>.zip.
func Name(root string, now time.Time) string {
	return fmt.Sprintf("%s_%s.zip", filepath.Base(root), now.Format(TimestampLayout))
}

// Create zips every regular file under root into the parent directory of
// root and returns the archive path. Entry names are relative to root
// and use forward slashes.
func Create(root string, now time.Time) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to stat output root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}

	path := filepath.Join(filepath.Dir(abs), Name(abs, now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640) //nolint:gosec // path is derived from the output root
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	if err := write(f, abs); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close archive: %w", err)
	}
	return path, nil
}

func write(w io.Writer, root string) error {
	zw := zip.NewWriter(w)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		if d.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return addFile(zw, p, name, d)
	})
	if err != nil {
		_ = zw.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	src, err := os.Open(path) //nolint:gosec // path comes from walking the output root
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(dst, src)
	return err
}
