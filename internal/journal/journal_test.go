package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TrueFaxx/polymarketbot/internal/signal"
)

func record(id string) Record {
	return Record{
		ID:     id,
		Ts:     time.Now().UTC(),
		Source: signal.SourceFollower,
		Market: "btc_15min",
		Side:   signal.Buy,
		Size:   10,
		Price:  0.50,
		Status: "filled",
	}
}

func TestJSONLAppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "trades.jsonl")
	j, err := NewJSONL(path)
	if err != nil {
		t.Fatalf("NewJSONL returned error: %v", err)
	}
	if err := j.Append(record("a")); err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	if err := j.Append(record("b")); err != nil {
		t.Fatalf("second append failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer file.Close()

	var ids []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		ids = append(ids, rec.ID)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected journal contents: %v", ids)
	}
}

func TestJSONLAppendAfterClose(t *testing.T) {
	j, err := NewJSONL(filepath.Join(t.TempDir(), "trades.jsonl"))
	if err != nil {
		t.Fatalf("NewJSONL returned error: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := j.Append(record("late")); err == nil {
		t.Fatalf("expected error appending after close")
	}
}

func TestSQLiteAppend(t *testing.T) {
	j, err := NewSQLite(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	defer j.Close()

	if err := j.Append(record("a")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := j.Append(record("b")); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	n, err := j.Count()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
}

func TestAsyncDrainsOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	inner, err := NewJSONL(path)
	if err != nil {
		t.Fatalf("NewJSONL returned error: %v", err)
	}

	a := NewAsync(inner, 16, zerolog.Nop())
	for i := 0; i < 10; i++ {
		if err := a.Append(record("x")); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	file := string(data)
	count := 0
	for _, c := range file {
		if c == '\n' {
			count++
		}
	}
	if count != 10 {
		t.Fatalf("expected 10 records after drain, got %d", count)
	}
}
