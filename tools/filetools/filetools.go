// Package filetools collects small filesystem helpers shared by the
// download and pipeline code.
package filetools

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dotysan/rsgislib/pkg/errors"
)

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// GetFileSize returns the size of a file in bytes.
func GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.NewFileIOError("GetFileSize", path, err)
	}
	return info.Size(), nil
}

// GetMD5Hash computes the MD5 checksum of a file as a lowercase hex
// string.
func GetMD5Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.NewFileIOError("GetMD5Hash", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.NewFileIOError("GetMD5Hash", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SplitPathBasename splits a path into directory, bare name and
// extension (with the dot).
func SplitPathBasename(path string) (dir, name, ext string) {
	dir = filepath.Dir(path)
	base := filepath.Base(path)
	ext = filepath.Ext(base)
	name = strings.TrimSuffix(base, ext)
	return dir, name, ext
}

// FindFilesExt walks a directory tree and returns the files carrying
// the given extension (with the dot, matched case-insensitively).
func FindFilesExt(dir, ext string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ext) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewFileIOError("FindFilesExt", dir, err)
	}
	return out, nil
}

// FileIsHidden reports whether the file's base name starts with a dot.
func FileIsHidden(path string) bool {
	base := filepath.Base(path)
	return len(base) > 1 && strings.HasPrefix(base, ".")
}

// DeleteFileSilent removes a file, ignoring a missing target.
func DeleteFileSilent(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewFileIOError("DeleteFileSilent", path, err)
	}
	return nil
}

// DeleteFileWithBasename removes every file in the same directory that
// shares the path's bare name, whatever the extension, so header and
// side-car files go with their dataset.
func DeleteFileWithBasename(path string) error {
	dir, name, _ := SplitPathBasename(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.NewFileIOError("DeleteFileWithBasename", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := entry.Name()
		bare := strings.TrimSuffix(base, filepath.Ext(base))
		if bare != name {
			continue
		}
		if err := os.Remove(filepath.Join(dir, base)); err != nil {
			return errors.NewFileIOError("DeleteFileWithBasename", filepath.Join(dir, base), err)
		}
	}
	return nil
}
