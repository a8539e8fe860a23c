package util

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// IsConfigured reports whether all provided values are non-empty.
func IsConfigured(values ...string) bool {
	return !slices.Contains(values, "")
}

// ValidatePath rejects empty paths and paths with parent-directory
// components.
func ValidatePath(field, path string) error {
	if path == "" {
		return fmt.Errorf("%s: is required", field)
	}
	if slices.Contains(strings.FieldsFunc(filepath.ToSlash(path), func(r rune) bool { return r == '/' }), "..") {
		return fmt.Errorf("%s: path cannot contain '..'", field)
	}
	return nil
}

// CheckPathWritable creates dir if needed and proves it accepts writes by
// creating, writing and removing a test file.
func CheckPathWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WrapError("create directory", err)
	}

	f, err := os.CreateTemp(dir, ".silencewatch-write-test-*")
	if err != nil {
		return WrapError("create test file", err)
	}
	name := f.Name()
	_, writeErr := f.Write(make([]byte, 1024))
	closeErr := f.Close()
	removeErr := os.Remove(name)

	switch {
	case writeErr != nil:
		return WrapError("write test file", writeErr)
	case closeErr != nil:
		return WrapError("close test file", closeErr)
	case removeErr != nil:
		return WrapError("remove test file", removeErr)
	}
	return nil
}
