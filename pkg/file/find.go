package file

import (
	"os"
	"path/filepath"
)

// FindWithExt walks dir and returns all regular files carrying one of the
// given extensions (lower-cased, including the dot).
func FindWithExt(dir string, exts ...string) ([]string, error) {
	wanted := make(map[string]bool, len(exts))
	for _, ext := range exts {
		wanted[ext] = true
	}

	var found []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && wanted[Ext(path)] {
			found = append(found, path)
		}
		return nil
	})

	return found, err
}

// Exists reports whether path exists and is a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
