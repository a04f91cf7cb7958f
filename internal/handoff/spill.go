package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/smartpixl/smartpixl/internal/hit"
	"github.com/smartpixl/smartpixl/internal/metrics"
)

// Spill appends hits as JSON lines to a rolling daily failover file. It has
// its own bounded queue so a slow disk cannot block the stream writer, and
// every line is written straight through the OS file handle with no
// user-space buffer to lose on crash.
type Spill struct {
	queue  *Queue
	dir    string
	logger *zap.Logger

	file *os.File
	day  string
}

func NewSpill(dir string, queueCapacity int, logger *zap.Logger) *Spill {
	return &Spill{
		queue:  NewQueue("failover", queueCapacity),
		dir:    dir,
		logger: logger,
	}
}

// Enqueue hands a hit to the spill writer. Never blocks; overflow drops the
// oldest queued hit.
func (s *Spill) Enqueue(h *hit.Hit) bool {
	return s.queue.Enqueue(h)
}

// Run writes queued hits until the queue is closed and empty or ctx ends,
// then drains what is left within deadline. Hits still queued at the deadline
// are lost and counted in a warning. The writer closes the queue after its
// own shutdown flush, so callers keep ctx alive past the writer's exit.
func (s *Spill) Run(ctx context.Context, drainDeadline time.Duration) {
	for {
		h, ok := s.queue.Dequeue(ctx)
		if !ok {
			break
		}
		s.write(h)
	}

	s.drain(drainDeadline)
	if s.file != nil {
		s.file.Close()
	}
}

// Close stops further enqueues.
func (s *Spill) Close() {
	s.queue.Close()
}

func (s *Spill) drain(deadline time.Duration) {
	stop := time.Now().Add(deadline)
	for {
		h, ok := s.queue.TryDequeue()
		if !ok {
			return
		}
		if time.Now().After(stop) {
			remaining := s.queue.Len() + 1
			s.logger.Warn("failover drain deadline reached, dropping queued hits",
				zap.Int("dropped", remaining))
			return
		}
		s.write(h)
	}
}

func (s *Spill) write(h *hit.Hit) {
	f, err := s.currentFile(h.ReceivedAt)
	if err != nil {
		s.logger.Error("failover file open failed", zap.Error(err))
		return
	}

	line, err := json.Marshal(h)
	if err != nil {
		s.logger.Error("failover encode failed", zap.Error(err))
		return
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		s.logger.Error("failover write failed", zap.Error(err))
		// Force a reopen on the next write.
		s.file.Close()
		s.file = nil
		return
	}
	metrics.HandoffRecordsTotal.WithLabelValues("spill").Inc()
}

// FileName returns the failover file name for a UTC day.
func FileName(t time.Time) string {
	return fmt.Sprintf("failover_%s.jsonl", t.UTC().Format("2006_01_02"))
}

func (s *Spill) currentFile(t time.Time) (*os.File, error) {
	day := t.UTC().Format("2006_01_02")
	if s.file != nil && s.day == day {
		return s.file, nil
	}
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, FileName(t))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	s.file = f
	s.day = day
	return f, nil
}
