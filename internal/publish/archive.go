package publish

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// CreateArchive zips the contents of root into archivePath. The archive
// itself and paths matching any exclude pattern are skipped. It returns the
// number of files written.
func CreateArchive(root, archivePath string, excludes []string) (int, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return 0, fmt.Errorf("resolve root: %w", err)
	}
	absArchive, err := filepath.Abs(archivePath)
	if err != nil {
		return 0, fmt.Errorf("resolve archive: %w", err)
	}

	out, err := os.Create(absArchive)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}

	zw := zip.NewWriter(out)
	count := 0

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == absRoot {
			return nil
		}
		if path == absArchive {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if excluded(rel, excludes) || excluded(rel+"/", excludes) {
				return filepath.SkipDir
			}
			_, err := zw.Create(rel + "/")
			return err
		}
		if !d.Type().IsRegular() || excluded(rel, excludes) {
			return nil
		}

		if err := addFile(zw, path, rel, d); err != nil {
			return err
		}
		count++
		return nil
	})

	if err := zw.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if err := out.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if walkErr != nil {
		os.Remove(absArchive)
		return 0, fmt.Errorf("write archive: %w", walkErr)
	}
	return count, nil
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

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

func excluded(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(filepath.ToSlash(pattern), rel); err == nil && matched {
			return true
		}
	}
	return false
}
