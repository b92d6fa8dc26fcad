package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wolfeidau/docsign/internal/bundle"
)

type Globals struct {
	Debug   bool
	Version string
}

// readValue returns value, or the trimmed contents of the file it names when prefixed with @.
func readValue(value string) (string, error) {
	path, ok := strings.CutPrefix(value, "@")
	if !ok {
		return value, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// writeFile writes data to path, creating parent directories.
func writeFile(path string, data []byte, mode os.FileMode) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// extractBundle writes every entry of a ZIP bundle into dir. Private keys are written owner-only.
func extractBundle(data []byte, dir string) ([]string, error) {
	entries, err := bundle.Read(data)
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(entries))
	for name, content := range entries {
		mode := os.FileMode(0644)
		if isPrivateKeyFile(name) {
			mode = 0600
		}
		path := filepath.Join(dir, filepath.Base(name))
		if err := writeFile(path, content, mode); err != nil {
			return nil, err
		}
		written = append(written, path)
	}
	return written, nil
}

func isPrivateKeyFile(name string) bool {
	switch name {
	case bundle.PrivateKeyFile, bundle.RootKeyFile, bundle.IntermediateKeyFile:
		return true
	}
	return false
}
