package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Outcome labels passed to a Recorder.
const (
	outcomeSuccessful      = "successful"
	outcomeProcessingError = "processing_error"
	outcomeValidationError = "validation_error"
)

type (
	// Recorder receives per-item and per-batch measurements.
	Recorder interface {
		RecordItem(outcome string)
		RecordBatch(duration time.Duration)
	}

	// Pipeline runs partner batches through normalize → validate → upsert.
	Pipeline struct {
		store     Store
		validator *Validator
		logger    *slog.Logger
		recorder  Recorder
	}

	// Option configures optional Pipeline behavior.
	Option func(*Pipeline)

	noopRecorder struct{}
)

func (noopRecorder) RecordItem(string)          {}
func (noopRecorder) RecordBatch(time.Duration) {}

// WithRecorder sets the metrics recorder. Without it nothing is recorded.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// NewPipeline creates a Pipeline writing to store. A nil logger falls back to slog.Default().
func NewPipeline(store Store, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrNoStore
	}

	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		store:     store,
		validator: NewValidator(),
		logger:    logger,
		recorder:  noopRecorder{},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Upsert stores a validated record by its natural key.
func (p *Pipeline) Upsert(ctx context.Context, record *ArticleProtocol) (*ArticleProtocol, bool, error) {
	stored, created, err := p.store.UpsertProtocol(ctx, record)
	if err != nil {
		return nil, false, fmt.Errorf("upsert %s: %w", record, err)
	}

	return stored, created, nil
}

// AddResult processes every item of the batch in order.
//
// Each item gets the batch msid injected, then goes through Normalize, Validate and Upsert.
// A *PipelineError lands the item in BatchResult.Failed and processing moves on. Any other error
// (store or infrastructure) stops the batch and is returned; items already stored stay stored.
func (p *Pipeline) AddResult(ctx context.Context, batch Batch) (*BatchResult, error) {
	start := time.Now()

	result := &BatchResult{
		Msid:       batch.Msid,
		Successful: make([]*ArticleProtocol, 0, len(batch.Items)),
		Failed:     []*PipelineError{},
	}

	for i, item := range batch.Items {
		stored, err := p.addItem(ctx, batch.Msid, item)
		if err == nil {
			result.Successful = append(result.Successful, stored)
			p.recorder.RecordItem(outcomeSuccessful)

			continue
		}

		var pipelineErr *PipelineError
		if !errors.As(err, &pipelineErr) {
			p.logger.Error("Batch aborted by store failure",
				slog.Int64("msid", batch.Msid),
				slog.Int("item", i),
				slog.Int("processed", result.Total()),
				slog.String("error", err.Error()),
			)

			return nil, err
		}

		result.Failed = append(result.Failed, pipelineErr)

		outcome := outcomeProcessingError
		if pipelineErr.Kind == KindValidation {
			outcome = outcomeValidationError
		}

		p.recorder.RecordItem(outcome)

		p.logger.Warn("Protocol row rejected",
			slog.Int64("msid", batch.Msid),
			slog.Int("item", i),
			slog.String("kind", pipelineErr.Kind.String()),
			slog.String("error", pipelineErr.Error()),
		)
	}

	duration := time.Since(start)
	p.recorder.RecordBatch(duration)

	p.logger.Info("Protocol batch processed",
		slog.Int64("msid", batch.Msid),
		slog.Int("total", len(batch.Items)),
		slog.Int("successful", len(result.Successful)),
		slog.Int("failed", len(result.Failed)),
		slog.Int64("duration_ms", duration.Milliseconds()),
	)

	return result, nil
}

func (p *Pipeline) addItem(ctx context.Context, msid int64, item RawProtocolItem) (*ArticleProtocol, error) {
	withMsid := make(RawProtocolItem, len(item)+1)
	for k, v := range item {
		withMsid[k] = v
	}

	withMsid[KeyMsid] = msid

	fields, err := Normalize(withMsid)
	if err != nil {
		return nil, err
	}

	record, err := p.validator.Validate(fields)
	if err != nil {
		return nil, err
	}

	stored, created, err := p.Upsert(ctx, record)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Protocol row stored",
		slog.String("record", record.String()),
		slog.Bool("created", created),
	)

	return stored, nil
}
