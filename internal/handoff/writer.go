package handoff

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/smartpixl/smartpixl/internal/hit"
	"github.com/smartpixl/smartpixl/internal/metrics"
)

// connState is the edge writer's connection state machine.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateDraining
)

// Dialer opens the stream to the forge. On this platform it is a Unix
// domain socket; the endpoint string is configuration.
type Dialer func(ctx context.Context) (net.Conn, error)

// UnixDialer dials the forge's socket at path.
func UnixDialer(path string) Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", path)
	}
}

// streamWriteTimeout bounds each flush to the forge. A stalled peer turns
// into a write error and a failover, never a blocked drain.
const streamWriteTimeout = 5 * time.Second

// Writer owns the primary handoff queue's consumer side: one goroutine that
// serializes hits to the stream when connected and diverts them to the spill
// when not. Reconnects back off exponentially between the configured bounds.
// The writer is the spill's only producer and closes its queue on exit.
type Writer struct {
	queue        *Queue
	spill        *Spill
	dial         Dialer
	minBackoff   time.Duration
	maxBackoff   time.Duration
	writeTimeout time.Duration
	logger       *zap.Logger

	state       connState
	conn        net.Conn
	bw          *bufio.Writer
	backoff     time.Duration
	nextAttempt time.Time
	connected   atomic.Bool
}

func NewWriter(queue *Queue, spill *Spill, dial Dialer, minBackoff, maxBackoff time.Duration, logger *zap.Logger) *Writer {
	return &Writer{
		queue:        queue,
		spill:        spill,
		dial:         dial,
		minBackoff:   minBackoff,
		maxBackoff:   maxBackoff,
		writeTimeout: streamWriteTimeout,
		logger:       logger,
		backoff:      minBackoff,
	}
}

// Run consumes the primary queue until ctx ends, then drains: queued hits go
// out over the stream if it is up, otherwise to the spill, bounded by
// drainDeadline. Hits still queued at the deadline are dropped with a
// warning. The spill queue is closed last, so everything diverted during the
// drain is still consumed; Spill.Run must outlive this call.
func (w *Writer) Run(ctx context.Context, drainDeadline time.Duration) {
	for {
		h, ok := w.queue.Dequeue(ctx)
		if !ok {
			break
		}
		w.send(ctx, h)
	}

	w.state = stateDraining
	w.drainRemaining(drainDeadline)
	w.disconnect()
	w.spill.Close()
}

func (w *Writer) send(ctx context.Context, h *hit.Hit) {
	if w.state != stateConnected {
		if !w.tryConnect(ctx) {
			w.toSpill(h)
			return
		}
	}

	if err := w.writeLine(h); err != nil {
		w.logger.Warn("handoff stream write failed, entering failover", zap.Error(err))
		w.disconnect()
		w.scheduleRetry()
		w.toSpill(h)
		return
	}
	metrics.HandoffRecordsTotal.WithLabelValues("stream").Inc()
}

func (w *Writer) writeLine(h *hit.Hit) error {
	line, err := json.Marshal(h)
	if err != nil {
		return err
	}
	w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	if _, err := w.bw.Write(line); err != nil {
		return err
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return err
	}
	return w.bw.Flush()
}

func (w *Writer) tryConnect(ctx context.Context) bool {
	if time.Now().Before(w.nextAttempt) {
		return false
	}
	w.state = stateConnecting

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	conn, err := w.dial(dialCtx)
	cancel()
	if err != nil {
		w.state = stateDisconnected
		w.scheduleRetry()
		w.logger.Warn("handoff connect failed",
			zap.Error(err),
			zap.Duration("next_attempt_in", w.backoff))
		return false
	}

	w.conn = conn
	w.bw = bufio.NewWriter(conn)
	w.state = stateConnected
	w.backoff = w.minBackoff
	w.nextAttempt = time.Time{}
	w.connected.Store(true)
	metrics.HandoffConnected.Set(1)
	w.logger.Info("handoff stream connected")
	return true
}

func (w *Writer) disconnect() {
	if w.conn != nil {
		w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
		w.bw.Flush()
		w.conn.Close()
		w.conn = nil
		w.bw = nil
	}
	if w.state != stateDraining {
		w.state = stateDisconnected
	}
	w.connected.Store(false)
	metrics.HandoffConnected.Set(0)
}

// Connected reports whether the stream to the forge is currently up. Safe to
// call from outside the Run goroutine; the readiness endpoint uses it.
func (w *Writer) Connected() bool {
	return w.connected.Load()
}

func (w *Writer) scheduleRetry() {
	w.nextAttempt = time.Now().Add(w.backoff)
	w.backoff *= 2
	if w.backoff > w.maxBackoff {
		w.backoff = w.maxBackoff
	}
}

func (w *Writer) toSpill(h *hit.Hit) {
	w.spill.Enqueue(h)
}

// drainRemaining flushes what is still queued at shutdown: over the stream
// when it survived, otherwise into the spill queue.
func (w *Writer) drainRemaining(deadline time.Duration) {
	stop := time.Now().Add(deadline)
	for {
		h, ok := w.queue.TryDequeue()
		if !ok {
			return
		}
		if time.Now().After(stop) {
			remaining := w.queue.Len() + 1
			w.logger.Warn("handoff drain deadline reached, dropping queued hits",
				zap.Int("dropped", remaining))
			return
		}
		if w.conn != nil {
			if err := w.writeLine(h); err == nil {
				metrics.HandoffRecordsTotal.WithLabelValues("stream").Inc()
				continue
			}
			w.disconnect()
		}
		w.toSpill(h)
	}
}
