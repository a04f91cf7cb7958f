package handoff

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/smartpixl/smartpixl/internal/hit"
	"github.com/smartpixl/smartpixl/internal/metrics"
)

// maxLineBytes bounds a single handoff record. Query strings carry the full
// client fingerprint catalog, so lines run long but never near this.
const maxLineBytes = 1 << 20

// Receiver accepts edge stream connections and decodes newline-delimited
// hits into the enrichment input queue. Malformed lines are logged and
// skipped; they never disconnect the client.
type Receiver struct {
	endpoint string
	maxConns int64
	out      *Queue
	logger   *zap.Logger
}

func NewReceiver(endpoint string, maxConns int, out *Queue, logger *zap.Logger) *Receiver {
	return &Receiver{
		endpoint: endpoint,
		maxConns: int64(maxConns),
		out:      out,
		logger:   logger,
	}
}

// Run listens until ctx ends. Concurrent connections beyond the configured
// maximum wait in the accept queue.
func (r *Receiver) Run(ctx context.Context) error {
	// A stale socket file from an unclean shutdown blocks the bind.
	if err := os.Remove(r.endpoint); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", r.endpoint)
	if err != nil {
		return err
	}
	r.logger.Info("handoff receiver listening", zap.String("endpoint", r.endpoint))

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	sem := semaphore.NewWeighted(r.maxConns)
	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			r.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			conn.Close()
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			r.serve(ctx, conn)
		}()
	}

	wg.Wait()
	os.Remove(r.endpoint)
	return nil
}

func (r *Receiver) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r.logger.Info("edge connected")

	// The watchdog must not outlive the connection it guards.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	// Reads are cancelled by the conn.Close above when ctx ends.
	for {
		if !sc.Scan() {
			err := sc.Err()
			if err == nil || errors.Is(err, io.EOF) {
				r.logger.Info("edge disconnected")
				return
			}
			if ctx.Err() == nil {
				r.logger.Warn("handoff read failed", zap.Error(err))
			}
			return
		}

		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		h := &hit.Hit{}
		if err := json.Unmarshal(line, h); err != nil {
			metrics.ReceiverLinesTotal.WithLabelValues("malformed").Inc()
			r.logger.Warn("malformed handoff line skipped", zap.Error(err))
			continue
		}
		metrics.ReceiverLinesTotal.WithLabelValues("ok").Inc()
		r.out.Enqueue(h)
	}
}
