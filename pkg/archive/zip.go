// Package archive extracts zip artifacts with path sanitization.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractZip extracts src into destDir and returns the paths written.
// Entries whose name fails filter are skipped; a nil filter keeps all.
// Entries that would escape destDir are rejected.
func ExtractZip(src, destDir string, filter func(name string) bool) ([]string, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", src, err)
	}
	defer r.Close()

	var written []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if filter != nil && !filter(f.Name) {
			continue
		}
		dest := filepath.Join(destDir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return nil, fmt.Errorf("archive entry %q escapes %s", f.Name, destDir)
		}
		if err := extractFile(f, dest); err != nil {
			return nil, err
		}
		written = append(written, dest)
	}
	return written, nil
}

// ListZip returns the file entry names in src.
func ListZip(src string) ([]string, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", src, err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		if !f.FileInfo().IsDir() {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

func extractFile(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
	}
	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("reading archive entry %s: %w", f.Name, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	return nil
}
