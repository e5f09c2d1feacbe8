package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// AccessEntry is one line of the API access log. It never carries request
// bodies, chat content or credentials.
type AccessEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	Method     string    `json:"method"`
	Route      string    `json:"route"`
	Status     int       `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	OwnerKind  string    `json:"owner_kind,omitempty"`
	RemoteAddr string    `json:"remote_addr"`
}

// AccessLogger writes access entries as JSON lines from a background
// goroutine, rotating files by size and flushing periodically.
type AccessLogger struct {
	fileTemplate  string // e.g. "/var/log/cyris/access-%s.jsonl"
	maxSize       int64
	maxFiles      int
	flushInterval time.Duration

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64

	entries chan AccessEntry
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewAccessLogger opens the first file and starts the writer goroutine.
// bufferSize entries may be queued; further entries are dropped.
func NewAccessLogger(fileTemplate string, maxSize int64, maxFiles, bufferSize int, flushInterval time.Duration) (*AccessLogger, error) {
	if !strings.Contains(fileTemplate, "%s") {
		return nil, fmt.Errorf("access log template %q must contain %%s", fileTemplate)
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}

	l := &AccessLogger{
		fileTemplate:  fileTemplate,
		maxSize:       maxSize,
		maxFiles:      maxFiles,
		flushInterval: flushInterval,
		entries:       make(chan AccessEntry, bufferSize),
		done:          make(chan struct{}),
	}

	if err := l.openFile(); err != nil {
		return nil, err
	}

	l.wg.Add(1)
	go l.run()

	return l, nil
}

// Log queues an entry. If the queue is full the entry is dropped.
func (l *AccessLogger) Log(entry AccessEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	select {
	case l.entries <- entry:
	default:
		Debugf("access log queue full, dropping %s %s", entry.Method, entry.Route)
	}
}

// Shutdown drains queued entries, flushes and closes the file.
func (l *AccessLogger) Shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	l.wg.Wait()
}

func (l *AccessLogger) newFileName() string {
	return fmt.Sprintf(l.fileTemplate, time.Now().UTC().Format("20060102150405.000"))
}

func (l *AccessLogger) openFile() error {
	l.currentFile = l.newFileName()
	if err := os.MkdirAll(filepath.Dir(l.currentFile), 0o755); err != nil {
		return fmt.Errorf("failed to create access log directory: %w", err)
	}

	file, err := os.OpenFile(l.currentFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	l.currentSize = fi.Size()
	l.file = file
	l.writer = bufio.NewWriter(file)
	return nil
}

// rotateIfNeeded must be called with mu held.
func (l *AccessLogger) rotateIfNeeded(n int) error {
	if l.maxSize <= 0 || l.currentSize == 0 || l.currentSize+int64(n) < l.maxSize {
		return nil
	}

	if err := l.writer.Flush(); err != nil {
		return err
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := l.openFile(); err != nil {
		return err
	}
	return l.cleanupOldFiles()
}

// cleanupOldFiles keeps the newest maxFiles files, the active one included.
func (l *AccessLogger) cleanupOldFiles() error {
	if l.maxFiles <= 0 {
		return nil
	}
	matches, err := filepath.Glob(fmt.Sprintf(l.fileTemplate, "*"))
	if err != nil {
		return err
	}
	// names embed a sortable timestamp
	sort.Strings(matches)

	for i := 0; i < len(matches)-l.maxFiles; i++ {
		if matches[i] == l.currentFile {
			continue
		}
		_ = os.Remove(matches[i])
	}
	return nil
}

func (l *AccessLogger) run() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-l.entries:
			l.write(entry)
		case <-ticker.C:
			l.mu.Lock()
			_ = l.writer.Flush()
			l.mu.Unlock()
		case <-l.done:
			for {
				select {
				case entry := <-l.entries:
					l.write(entry)
				default:
					l.mu.Lock()
					_ = l.writer.Flush()
					_ = l.file.Close()
					l.mu.Unlock()
					return
				}
			}
		}
	}
}

func (l *AccessLogger) write(entry AccessEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfNeeded(len(data)); err != nil {
		Warningf("access log rotation failed: %v", err)
	}
	n, _ := l.writer.Write(data)
	l.currentSize += int64(n)
}
