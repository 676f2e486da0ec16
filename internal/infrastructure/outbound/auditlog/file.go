package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sophialabs/mimicry/internal/domain/audit"
)

var _ audit.Sink = (*FileSink)(nil)

// Rotation defaults for the audit file.
const (
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 5
)

// FileSink appends entries as JSON lines to a size-rotated file.
type FileSink struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewFileSink opens path lazily; rotation keeps DefaultMaxBackups files of
// DefaultMaxSizeMB each.
func NewFileSink(path string) *FileSink {
	return NewWriterSink(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
	})
}

// NewWriterSink writes JSON lines to w.
func NewWriterSink(w io.WriteCloser) *FileSink {
	return &FileSink{w: w}
}

// Append encodes e on one line. Each line is written with a single Write so
// rotation never splits an entry.
func (s *FileSink) Append(ctx context.Context, e audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Close releases the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}
