// Package worker consumes batch jobs from the Redis queue: the daily
// optimizer run and stats retention.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inkline/adengine/internal/models"
	"github.com/inkline/adengine/internal/optimizer"
	"github.com/inkline/adengine/pkg/queue"
)

// OptimizerRunner is the daily optimizer job.
type OptimizerRunner interface {
	RunOnce(ctx context.Context, day string, force bool) (*models.OptimizerLogEntry, error)
}

// RetentionRunner removes expired history.
type RetentionRunner interface {
	Run(ctx context.Context, now time.Time) (int, error)
}

// JobSource is the queue the processor drains.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Processor runs optimizer and retention jobs.
type Processor struct {
	optimizer OptimizerRunner
	retention RetentionRunner
	queue     JobSource
	logger    *zap.Logger
	backoff   time.Duration
	now       func() time.Time
}

// NewProcessor creates a job processor. retention may be nil.
func NewProcessor(opt OptimizerRunner, retention RetentionRunner, q JobSource, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		optimizer: opt,
		retention: retention,
		queue:     q,
		logger:    logger,
		backoff:   queue.RetryBackoff,
		now:       time.Now,
	}
}

// Daily is one scheduled cycle: optimize yesterday, then apply retention.
// The retention step runs even when the optimizer skipped.
func (p *Processor) Daily(ctx context.Context) error {
	_, err := p.runOptimizer(ctx, queue.OptimizerRunPayload{})
	if rerr := p.runRetention(ctx); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeOptimizerRun:
		var payload queue.OptimizerRunPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		_, err := p.runOptimizer(ctx, payload)
		return err
	case queue.JobTypeRetention:
		return p.runRetention(ctx)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) runOptimizer(ctx context.Context, payload queue.OptimizerRunPayload) (*models.OptimizerLogEntry, error) {
	entry, err := p.optimizer.RunOnce(ctx, payload.Day, payload.Force)
	if errors.Is(err, optimizer.ErrRunInProgress) {
		// the running invocation writes the log entry
		p.logger.Info("optimizer already running, job dropped", zap.String("day", payload.Day))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("optimizer run: %w", err)
	}
	p.logger.Info("optimizer job done",
		zap.String("day", entry.Day),
		zap.String("status", string(entry.Status)),
		zap.String("requested_by", payload.RequestedBy),
	)
	return entry, nil
}

func (p *Processor) runRetention(ctx context.Context) error {
	if p.retention == nil {
		return nil
	}
	n, err := p.retention.Run(ctx, p.now())
	if err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	p.logger.Debug("retention done", zap.Int("days_removed", n))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *Processor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
