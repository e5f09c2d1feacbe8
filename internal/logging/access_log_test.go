package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readAccessLines(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "access-*.jsonl"))
	if err != nil {
		t.Fatalf("Failed to glob files: %v", err)
	}
	var lines []string
	for _, m := range matches {
		content, err := os.ReadFile(m)
		if err != nil {
			t.Fatalf("Failed to read log file: %v", err)
		}
		for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
			if line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines
}

func TestNewAccessLogger(t *testing.T) {
	tempDir := t.TempDir()
	fileTemplate := filepath.Join(tempDir, "access-%s.jsonl")

	logger, err := NewAccessLogger(fileTemplate, 1024, 5, 10, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Shutdown()

	if logger.maxSize != 1024 {
		t.Errorf("Expected maxSize 1024, got %d", logger.maxSize)
	}
	if logger.maxFiles != 5 {
		t.Errorf("Expected maxFiles 5, got %d", logger.maxFiles)
	}
}

func TestNewAccessLogger_RequiresPlaceholder(t *testing.T) {
	if _, err := NewAccessLogger(filepath.Join(t.TempDir(), "access.jsonl"), 1024, 5, 10, time.Second); err == nil {
		t.Fatalf("Expected error for template without %%s")
	}
}

func TestAccessLogger_Log(t *testing.T) {
	tempDir := t.TempDir()
	logger, err := NewAccessLogger(filepath.Join(tempDir, "access-%s.jsonl"), 10*1024, 5, 100, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Log(AccessEntry{
		RequestID:  "req-1",
		Method:     "POST",
		Route:      "POST /api/chats/{id}/messages",
		Status:     200,
		DurationMS: 1234,
		OwnerKind:  "user",
		RemoteAddr: "127.0.0.1:12345",
	})
	logger.Shutdown()

	lines := readAccessLines(t, tempDir)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(lines))
	}

	var got AccessEntry
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("Entry is not JSON: %v", err)
	}
	if got.Route != "POST /api/chats/{id}/messages" || got.Status != 200 || got.OwnerKind != "user" {
		t.Errorf("Unexpected entry: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("Timestamp should be filled in")
	}
}

func TestAccessLogger_ShutdownDrains(t *testing.T) {
	tempDir := t.TempDir()
	logger, err := NewAccessLogger(filepath.Join(tempDir, "access-%s.jsonl"), 10*1024, 5, 100, time.Second)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	for i := 0; i < 5; i++ {
		logger.Log(AccessEntry{Method: "GET", Route: fmt.Sprintf("/api/chats/%d", i), Status: 200})
	}
	logger.Shutdown()
	logger.Shutdown()

	if lines := readAccessLines(t, tempDir); len(lines) != 5 {
		t.Errorf("Expected 5 log entries after shutdown, got %d", len(lines))
	}
}

func TestAccessLogger_RotatesAndCleansUp(t *testing.T) {
	tempDir := t.TempDir()
	logger, err := NewAccessLogger(filepath.Join(tempDir, "access-%s.jsonl"), 200, 2, 100, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	for i := 0; i < 15; i++ {
		logger.Log(AccessEntry{Method: "GET", Route: "GET /api/chats", Status: 200, RemoteAddr: "10.0.0.1:5555"})
		time.Sleep(5 * time.Millisecond)
	}
	logger.Shutdown()

	matches, err := filepath.Glob(filepath.Join(tempDir, "access-*.jsonl"))
	if err != nil {
		t.Fatalf("Failed to glob files: %v", err)
	}
	if len(matches) > 2 {
		t.Errorf("Expected at most 2 log files, got %d: %v", len(matches), matches)
	}
}

func TestAccessLogger_QueueFullDrops(t *testing.T) {
	tempDir := t.TempDir()
	logger, err := NewAccessLogger(filepath.Join(tempDir, "access-%s.jsonl"), 1024*1024, 5, 2, time.Second)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	for i := 0; i < 200; i++ {
		logger.Log(AccessEntry{Method: "GET", Route: "GET /health", Status: 200})
	}
	logger.Shutdown()

	lines := readAccessLines(t, tempDir)
	if len(lines) == 0 || len(lines) > 200 {
		t.Errorf("Unexpected entry count %d", len(lines))
	}
}
