package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// JSONL appends records as JSON lines for later analysis.
type JSONL struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONL creates/opens the target file and returns the journal.
func NewJSONL(path string) (*JSONL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONL{file: file, enc: json.NewEncoder(file)}, nil
}

// Append writes a single record as one line.
func (j *JSONL) Append(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return os.ErrClosed
	}
	return j.enc.Encode(rec)
}

// Close flushes and closes the file handle.
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}
