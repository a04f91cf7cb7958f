package pipeline

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/smartpixl/smartpixl/internal/hit"
	"github.com/smartpixl/smartpixl/internal/metrics"
)

var rawColumns = []string{
	"company_id", "pixl_id", "ip_address", "request_path",
	"query_string", "headers_json", "user_agent", "referer", "received_at",
}

// BulkWriter batches stamped hits and bulk-inserts them into pixl_hits_raw
// with COPY. A failed batch is logged with its size and dropped; the failover
// files, not the writer, are the durability mechanism.
type BulkWriter struct {
	pool          *pgxpool.Pool
	batchSize     int
	flushInterval time.Duration
	drainTimeout  time.Duration
	logger        *zap.Logger
}

func NewBulkWriter(pool *pgxpool.Pool, batchSize, flushIntervalMs int, drainTimeout time.Duration, logger *zap.Logger) *BulkWriter {
	return &BulkWriter{
		pool:          pool,
		batchSize:     batchSize,
		flushInterval: time.Duration(flushIntervalMs) * time.Millisecond,
		drainTimeout:  drainTimeout,
		logger:        logger,
	}
}

// Run consumes hits until ctx is cancelled, then drains what it holds under
// a fresh deadline so shutdown does not lose the tail of the batch.
func (w *BulkWriter) Run(ctx context.Context, in <-chan *hit.Hit) {
	var batch []*hit.Hit
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain(batch, in)
			return

		case h, ok := <-in:
			if !ok {
				w.drain(batch, nil)
				return
			}
			batch = append(batch, h)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = nil
			}
		}
	}
}

func (w *BulkWriter) drain(batch []*hit.Hit, in <-chan *hit.Hit) {
	ctx, cancel := context.WithTimeout(context.Background(), w.drainTimeout)
	defer cancel()

	for in != nil {
		select {
		case h, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			batch = append(batch, h)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = nil
			}
		case <-ctx.Done():
			in = nil
		}
	}
	if len(batch) > 0 {
		w.flush(ctx, batch)
	}
}

func (w *BulkWriter) flush(ctx context.Context, batch []*hit.Hit) {
	start := time.Now()

	rows := make([][]any, len(batch))
	for i, h := range batch {
		rows[i] = []any{
			h.CompanyID, h.PixelID, h.Address, h.RequestPath,
			h.QueryString, h.HeadersJSON, h.UserAgent, h.Referrer, h.ReceivedAt,
		}
	}

	n, err := w.pool.CopyFrom(ctx, pgx.Identifier{"pixl_hits_raw"}, rawColumns, pgx.CopyFromRows(rows))
	if err != nil {
		metrics.BatchFailuresTotal.Inc()
		w.logger.Error("bulk insert failed",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		return
	}

	metrics.DBWriteDuration.WithLabelValues("copy").Observe(time.Since(start).Seconds())
	metrics.DBRowsWrittenTotal.WithLabelValues("pixl_hits_raw").Add(float64(n))
	metrics.BatchSize.Observe(float64(len(batch)))
}
