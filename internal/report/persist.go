package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/cruciblehq/cruxgate/internal/paths"
)

const (
	JSONFile   = "report.json"
	TextFile   = "report.txt"
	OutputFile = "verify.log"
	HTMLDir    = "htmlcov"
)

// Persists the report into dir as report.json, report.txt, and verify.log.
//
// Each file is replaced atomically so a reader never observes a partial
// report.
func Write(dir string, r *Report) error {
	if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	data, err := Marshal(r)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(filepath.Join(dir, JSONFile), data, paths.DefaultFileMode); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	var text bytes.Buffer
	if err := Render(&text, r, false); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, TextFile), text.Bytes(), paths.DefaultFileMode); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	if err := renameio.WriteFile(filepath.Join(dir, OutputFile), []byte(r.Output), paths.DefaultFileMode); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	return nil
}

// Encodes the report as indented JSON.
func Marshal(r *Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return append(data, '\n'), nil
}

// Reads a persisted report.json.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &r, nil
}
