package access

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/triagecore/triagecore/pkg/models"
)

// AuditSink receives one append-only entry per authorization check.
// Implementations must tolerate concurrent writers without losing entries.
type AuditSink interface {
	Append(ctx context.Context, entry models.AuditEntry) error
}

// MemorySink keeps audit entries in memory, mainly for tests and
// single-process deployments.
type MemorySink struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Append(_ context.Context, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns a copy of everything recorded so far.
func (s *MemorySink) Entries() []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// FallbackLog is the degraded-mode destination when the primary audit sink
// is unreachable: a local append-only JSONL file. Entries written here are
// at-least-once; a separate job reconciles them later.
type FallbackLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func NewFallbackLog(dir string) (*FallbackLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit fallback directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("audit_fallback_%s.jsonl", time.Now().Format("20060102")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit fallback log: %w", err)
	}
	return &FallbackLog{path: path, file: file}, nil
}

func (l *FallbackLog) Append(_ context.Context, entry models.AuditEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing audit fallback entry: %w", err)
	}
	// Sync per entry: fallback writes must be durable, they are the last copy.
	return l.file.Sync()
}

func (l *FallbackLog) Path() string { return l.path }

func (l *FallbackLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
