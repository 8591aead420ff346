// Package recordfile treats line-oriented flat files as ordered lists of
// delimited records.
package recordfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrFieldCount reports a record line whose field count does not match the
// arity the caller expects.
var ErrFieldCount = errors.New("record has wrong field count")

// Load reads path and returns its non-empty lines with surrounding
// whitespace trimmed. A missing file is not an error: it is created with
// defaultContent and the parsed default is returned. Calling Load on an
// existing file has no side effects.
func Load(path, defaultContent string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("os.ReadFile: %w", err)
		}

		if err := Save(path, strings.Split(defaultContent, "\n")); err != nil {
			return nil, fmt.Errorf("recordfile.Save: %w", err)
		}

		data = []byte(defaultContent)
	}

	var lines []string

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		lines = append(lines, line)
	}

	return lines, nil
}

// Save overwrites path with lines joined by newline. The replace is
// all-or-nothing: content is written to a temp file in the same directory
// and renamed over the target, so a reader never observes a half-written
// file.
func Save(path string, lines []string) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("os.CreateTemp: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.WriteString(strings.Join(lines, "\n")); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("tmp.WriteString: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("tmp.Close: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("os.Rename: %w", err)
	}

	return nil
}

// Split cuts line on delim into exactly arity fields, trimming whitespace
// from each. A mismatched field count returns ErrFieldCount: a present but
// malformed record is data corruption and must surface, never be dropped.
func Split(line, delim string, arity int) ([]string, error) {
	fields := strings.Split(line, delim)
	if len(fields) != arity {
		return nil, fmt.Errorf("%w: want %d fields, got %d in %q",
			ErrFieldCount, arity, len(fields), line)
	}

	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}

	return fields, nil
}
