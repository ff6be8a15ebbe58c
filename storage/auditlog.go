package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// DefaultAuditMaxBytes is the size at which the audit log rotates.
const DefaultAuditMaxBytes = 10 * 1024 * 1024

// AuditEntry is one line of the audit log.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Instance  string    `json:"instance"`
	Question  string    `json:"question"`
	Response  string    `json:"response"`
	Model     string    `json:"model"`
}

// AuditLog appends completed exchanges as JSON lines to
// <dir>/<instance>-current.jsonl. When a write would push the file past
// maxBytes the file is renamed with a timestamp and compressed to
// <instance>-<timestamp>.jsonl.gz.
type AuditLog struct {
	dir      string
	instance string
	maxBytes int64

	mu      sync.Mutex
	f       *os.File
	curSize int64
}

// NewAuditLog creates an audit log. Files are opened lazily on first write.
// Non-positive maxBytes selects DefaultAuditMaxBytes.
func NewAuditLog(dir, instance string, maxBytes int64) *AuditLog {
	if maxBytes <= 0 {
		maxBytes = DefaultAuditMaxBytes
	}
	return &AuditLog{dir: dir, instance: instance, maxBytes: maxBytes}
}

// Record appends one entry.
func (a *AuditLog) Record(entry AuditEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureOpen(); err != nil {
		return err
	}
	if a.curSize > 0 && a.curSize+int64(len(line)) > a.maxBytes {
		if err := a.rotate(); err != nil {
			return err
		}
	}
	n, err := a.f.Write(line)
	a.curSize += int64(n)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

func (a *AuditLog) currentPath() string {
	return filepath.Join(a.dir, a.instance+"-current.jsonl")
}

func (a *AuditLog) ensureOpen() error {
	if a.f != nil {
		return nil
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(a.currentPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	a.f = f
	if st, err := f.Stat(); err == nil {
		a.curSize = st.Size()
	} else {
		a.curSize = 0
	}
	return nil
}

func (a *AuditLog) rotate() error {
	oldPath := a.f.Name()
	_ = a.f.Close()
	a.f = nil

	// Nanosecond timestamps keep rotations within one second apart.
	ts := time.Now().UTC().Format("20060102-150405.000000000")
	rotated := filepath.Join(a.dir, fmt.Sprintf("%s-%s.jsonl", a.instance, ts))
	if err := os.Rename(oldPath, rotated); err != nil {
		return fmt.Errorf("rename rotated audit log: %w", err)
	}
	if err := compressFile(rotated); err != nil {
		return err
	}
	return a.ensureOpen()
}

// compressFile replaces path with path.gz.
func compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open rotated audit log: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path+".gz", os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create audit archive: %w", err)
	}

	zw := gzip.NewWriter(dst)
	zw.Name = filepath.Base(path)
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		dst.Close()
		return fmt.Errorf("compress audit log: %w", err)
	}
	if err := zw.Close(); err != nil {
		dst.Close()
		return fmt.Errorf("compress audit log: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close audit archive: %w", err)
	}
	return os.Remove(path)
}

// Archives lists the compressed archives of this log, oldest first.
func (a *AuditLog) Archives() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read audit directory: %w", err)
	}

	var archives []string
	prefix := a.instance + "-"
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".jsonl.gz") {
			archives = append(archives, filepath.Join(a.dir, name))
		}
	}
	sort.Strings(archives)
	return archives, nil
}

// Close closes the current file.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f != nil {
		err := a.f.Close()
		a.f = nil
		return err
	}
	return nil
}
