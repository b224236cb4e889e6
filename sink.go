package divisions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLWriter appends one ClassificationRecord per line to a file. Every
// Append reaches the file before it returns, so a crash loses at most the
// record being written. It is safe for concurrent use.
type JSONLWriter struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// CreateJSONL starts a new log at path, discarding any records a previous
// batch left there. Intermediate directories are created automatically.
func CreateJSONL(path string) (*JSONLWriter, error) {
	return openJSONL(path, os.O_TRUNC)
}

// OpenJSONL opens (or creates) the log at path in append mode, keeping the
// records already in it. Use it to resume an interrupted batch.
func OpenJSONL(path string) (*JSONLWriter, error) {
	return openJSONL(path, 0)
}

func openJSONL(path string, flag int) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("jsonl: create output dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonl: open %q: %w", path, err)
	}
	return &JSONLWriter{file: f, path: path}, nil
}

// Append writes rec as a single JSON line.
func (w *JSONLWriter) Append(rec ClassificationRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jsonl: encode: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("jsonl: write %q: %w", w.path, err)
	}
	return nil
}

// Path returns the file the writer appends to.
func (w *JSONLWriter) Path() string { return w.path }

// Close syncs and closes the underlying file.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("jsonl: sync: %w", err)
	}
	return w.file.Close()
}

// ReadJSONL loads every record from a classification log. Blank lines are
// skipped; a truncated trailing line from an interrupted run is ignored.
func ReadJSONL(path string) ([]ClassificationRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("jsonl: open %q: %w", path, err)
	}
	defer f.Close()

	var records []ClassificationRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var pendingErr error
	line := 0
	for sc.Scan() {
		line++
		if pendingErr != nil {
			return nil, pendingErr
		}
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec ClassificationRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			pendingErr = fmt.Errorf("jsonl: %s line %d: %w", path, line, err)
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("jsonl: read %q: %w", path, err)
	}
	return records, nil
}
