package internal

import (
	"fmt"
	"os"
	"path/filepath"
)

// FullPathname makes filename absolute with respect to the working directory.
func FullPathname(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		return filename, nil
	}
	wd, err := os.Getwd()
	return filepath.Join(wd, filename), err
}

// CheckReadable returns an error if filename is not an existing, readable,
// regular file.
func CheckReadable(filename string) error {
	info, err := os.Stat(filename)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%v is a directory", filename)
	}
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	return f.Close()
}

// Exists reports whether filename names an existing file or directory.
func Exists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}
