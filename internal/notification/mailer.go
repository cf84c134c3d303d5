package notification

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Mailer delivers rendered messages.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// FileMailer appends messages to a log file instead of sending them.
type FileMailer struct {
	mu   sync.Mutex
	path string
}

func NewFileMailer(path string) *FileMailer { return &FileMailer{path: path} }

func (f *FileMailer) Send(_ context.Context, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("mkdir mail log dir: %w", err)
	}
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open mail log: %w", err)
	}
	defer fh.Close()

	body := strings.ReplaceAll(m.Body, "\n", "\n    ")
	line := fmt.Sprintf("[%s] to=%s | subject=%q\n    %s\n", time.Now().UTC().Format(time.RFC3339), m.To, m.Subject, body)
	if _, err := fh.WriteString(line); err != nil {
		return fmt.Errorf("write mail log: %w", err)
	}
	return nil
}
