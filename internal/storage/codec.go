package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"sales/internal/core"
)

// decodePeriod parses a period file. Any problem is reported as ErrCorruptPeriodFile.
func decodePeriod(raw []byte) (core.PeriodData, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty file", core.ErrCorruptPeriodFile)
	}
	var data core.PeriodData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptPeriodFile, err)
	}
	if data == nil {
		data = core.PeriodData{}
	}
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptPeriodFile, err)
	}
	return data, nil
}

// encodePeriod renders the file with two-space indentation and unescaped
// non-ASCII text, keys sorted.
func encodePeriod(data core.PeriodData) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// createTemp is replaced in tests to simulate a failing disk.
var createTemp = os.CreateTemp

// writeAtomic writes data next to path and renames it into place, so a failed
// write never leaves a truncated file behind.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := createTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", core.ErrPersistenceFailure, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write temp file: %v", core.ErrPersistenceFailure, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync temp file: %v", core.ErrPersistenceFailure, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", core.ErrPersistenceFailure, err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("%w: chmod temp file: %v", core.ErrPersistenceFailure, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: rename into place: %v", core.ErrPersistenceFailure, err)
	}
	return nil
}
