package divisions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteDivisions stores the room type → divisions mapping as indented JSON.
// Intermediate directories are created automatically.
func WriteDivisions(path string, divisions map[string][]DivisionRecord) error {
	return writeJSON(path, divisions)
}

// ReadDivisions loads a mapping written by WriteDivisions.
func ReadDivisions(path string) (map[string][]DivisionRecord, error) {
	var out map[string][]DivisionRecord
	if err := readJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteClassifications stores the room type → classifications mapping
// returned by ClassifyGallery.
func WriteClassifications(path string, byType map[string][]ClassificationRecord) error {
	return writeJSON(path, byType)
}

// ReadClassifications loads a mapping written by WriteClassifications.
func ReadClassifications(path string) (map[string][]ClassificationRecord, error) {
	var out map[string][]ClassificationRecord
	if err := readJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// writeJSON writes to a temporary file and renames it so readers never see a
// partial document.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %q: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %q: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %q: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %q: %w", path, err)
	}
	return nil
}
