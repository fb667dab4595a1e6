package sessionlog

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/inkline/adengine/internal/models"
)

// ErrBufferFull is returned by Write when the flush loop has fallen behind.
var ErrBufferFull = errors.New("session log buffer full")

// Inserter is the batch write side of a session log.
type Inserter interface {
	Insert(ctx context.Context, sessions []models.ArchivedSession) error
}

// Writer buffers archived sessions and inserts them in batches.
type Writer struct {
	dst      Inserter
	ch       chan models.ArchivedSession
	maxBatch int
	interval time.Duration
	logger   *zap.Logger
}

// NewWriter creates a buffered writer. Call Run to start flushing.
func NewWriter(dst Inserter, bufferSize, maxBatch int, interval time.Duration, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	if maxBatch <= 0 {
		maxBatch = 500
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Writer{
		dst:      dst,
		ch:       make(chan models.ArchivedSession, bufferSize),
		maxBatch: maxBatch,
		interval: interval,
		logger:   logger,
	}
}

// Write queues s without blocking.
func (w *Writer) Write(_ context.Context, s models.ArchivedSession) error {
	select {
	case w.ch <- s:
		return nil
	default:
		return ErrBufferFull
	}
}

// Run flushes batches until ctx is done, then drains what is queued.
func (w *Writer) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	batch := make([]models.ArchivedSession, 0, w.maxBatch)

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := w.dst.Insert(ctx, batch); err != nil {
			w.logger.Error("session log insert failed", zap.Int("sessions", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case s := <-w.ch:
			batch = append(batch, s)
			if len(batch) >= w.maxBatch {
				flush(ctx)
			}
		case <-t.C:
			flush(ctx)
		case <-ctx.Done():
		drain:
			for {
				select {
				case s := <-w.ch:
					batch = append(batch, s)
				default:
					break drain
				}
			}
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(drainCtx)
			cancel()
			return
		}
	}
}
