package handoff

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/smartpixl/smartpixl/internal/hit"
	"github.com/smartpixl/smartpixl/internal/metrics"
)

// Catchup tails the failover directory and replays spilled hits into the
// enrichment queue. Today's file may still be appended to by an edge, so
// only files from earlier UTC days are consumed. Replayed files move to the
// archive subdirectory, optionally zstd-compressed.
type Catchup struct {
	dir      string
	interval time.Duration
	compress bool
	out      *Queue
	logger   *zap.Logger
}

func NewCatchup(dir string, interval time.Duration, compress bool, out *Queue, logger *zap.Logger) *Catchup {
	return &Catchup{
		dir:      dir,
		interval: interval,
		compress: compress,
		out:      out,
		logger:   logger,
	}
}

// Run scans immediately and then on every interval tick until ctx ends.
func (c *Catchup) Run(ctx context.Context) {
	c.scan(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.scan(ctx)
		}
	}
}

func (c *Catchup) scan(ctx context.Context) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("failover directory scan failed", zap.Error(err))
		}
		return
	}

	today := FileName(time.Now())
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "failover_") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		if name == today {
			// An edge may still be appending to today's file.
			continue
		}
		c.replayFile(ctx, filepath.Join(c.dir, name))
	}
}

func (c *Catchup) replayFile(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		c.logger.Warn("failover file open failed", zap.String("file", path), zap.Error(err))
		return
	}

	var replayed, malformed int
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		if ctx.Err() != nil {
			f.Close()
			return
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		h := &hit.Hit{}
		if err := json.Unmarshal(line, h); err != nil {
			malformed++
			metrics.FailoverReplayTotal.WithLabelValues("malformed").Inc()
			continue
		}
		c.out.Enqueue(h)
		replayed++
		metrics.FailoverReplayTotal.WithLabelValues("ok").Inc()
	}
	scanErr := sc.Err()
	f.Close()

	if scanErr != nil {
		c.logger.Warn("failover file read failed, leaving in place",
			zap.String("file", path), zap.Error(scanErr))
		return
	}

	if err := c.archive(path); err != nil {
		c.logger.Warn("failover file archive failed", zap.String("file", path), zap.Error(err))
		return
	}

	c.logger.Info("failover file replayed",
		zap.String("file", filepath.Base(path)),
		zap.Int("replayed", replayed),
		zap.Int("malformed", malformed),
	)
}

func (c *Catchup) archive(path string) error {
	archiveDir := filepath.Join(c.dir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return err
	}

	dst := filepath.Join(archiveDir, filepath.Base(path))
	if !c.compress {
		return os.Rename(path, dst)
	}

	if err := compressFile(path, dst+".zst"); err != nil {
		// Fall back to a plain move rather than re-replaying next scan.
		return os.Rename(path, dst)
	}
	return os.Remove(path)
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		return err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
