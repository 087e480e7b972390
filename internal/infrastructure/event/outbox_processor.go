package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/erp/invsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	ProducerID       string
	BatchSize        int
	PollInterval     time.Duration
	StaleAfter       time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		ProducerID:       "invsync",
		BatchSize:        100,
		PollInterval:     time.Second,
		StaleAfter:       5 * time.Minute,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// OutboxProcessor relays outbox entries to the bus. Publishing failures are
// retried with exponential backoff; an entry that exhausts its retries is
// parked as DEAD and kept until an operator resets it.
type OutboxProcessor struct {
	repo      shared.OutboxRepository
	publisher shared.EventPublisher
	config    OutboxProcessorConfig
	logger    *zap.Logger
	metrics   *telemetry.SyncMetrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	publisher shared.EventPublisher,
	config OutboxProcessorConfig,
	logger *zap.Logger,
	metrics *telemetry.SyncMetrics,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	return &OutboxProcessor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start starts the background processing
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.processLoop(ctx)

	if p.config.CleanupEnabled && p.config.CleanupInterval > 0 {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("outbox processor started",
		zap.String("producer_id", p.config.ProducerID),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the processor
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("outbox batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce runs one relay pass: stale claims are requeued, then pending
// and due retries are published. It returns the number of entries sent.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	if p.config.StaleAfter > 0 {
		requeued, err := p.repo.RequeueStale(ctx, time.Now().Add(-p.config.StaleAfter))
		if err != nil {
			return 0, fmt.Errorf("requeue stale outbox entries: %w", err)
		}
		if requeued > 0 {
			p.logger.Warn("requeued stale outbox entries", zap.Int64("count", requeued))
		}
	}

	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("find pending outbox entries: %w", err)
	}
	sent := p.processEntries(ctx, pending)

	retryable, err := p.repo.FindRetryable(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		return sent, fmt.Errorf("find retryable outbox entries: %w", err)
	}
	return sent + p.processEntries(ctx, retryable), nil
}

func (p *OutboxProcessor) processEntries(ctx context.Context, entries []*shared.OutboxEntry) int {
	if len(entries) == 0 {
		return 0
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("failed to mark entries as processing", zap.Error(err))
		return 0
	}

	sent := 0
	for _, entry := range claimed {
		if p.processEntry(ctx, entry) {
			sent++
		}
	}
	return sent
}

func (p *OutboxProcessor) processEntry(ctx context.Context, entry *shared.OutboxEntry) bool {
	ctx, span := telemetry.StartSpan(ctx, "outbox.publish",
		telemetry.WithSpanKind(trace.SpanKindProducer),
		telemetry.WithAttribute(telemetry.SpanAttrEventID, entry.EventID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrEventType, entry.EventType),
		telemetry.WithAttribute(telemetry.SpanAttrProducer, p.config.ProducerID),
	)
	defer span.End()

	log := p.logger.With(
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
	)

	if err := p.publisher.Publish(ctx, entry.ToEnvelope(p.config.ProducerID)); err != nil {
		telemetry.RecordError(span, err)
		entry.MarkFailed(err.Error())
		if entry.IsDead() {
			log.Error("outbox entry exhausted its retries and is parked",
				zap.String("aggregate_type", entry.AggregateType),
				zap.String("aggregate_id", entry.AggregateID.String()),
				zap.Int("retry_count", entry.RetryCount),
				zap.String("last_error", entry.LastError),
			)
		} else {
			log.Warn("failed to publish outbox entry, will retry",
				zap.Int("retry_count", entry.RetryCount),
				zap.Timep("next_retry_at", entry.NextRetryAt),
				zap.Error(err),
			)
		}
		if updateErr := p.repo.Update(ctx, entry); updateErr != nil {
			log.Error("failed to update outbox entry", zap.Error(updateErr))
		}
		return false
	}

	entry.MarkSent()
	if err := p.repo.Update(ctx, entry); err != nil {
		// the entry stays PROCESSING and is requeued as stale; consumers dedupe the republish
		log.Error("failed to mark outbox entry as sent", zap.Error(err))
		return false
	}
	p.metrics.RecordOutboxPublished(ctx, entry.EventType, 1)
	telemetry.SetOK(span)
	log.Debug("outbox entry published")
	return true
}

// RetryDead resets a dead entry so the next pass publishes it again
func (p *OutboxProcessor) RetryDead(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	entry, err := p.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entry.ResetForRetry(); err != nil {
		return nil, shared.NewBusinessRuleViolation("OUTBOX_NOT_DEAD", err.Error())
	}
	if err := p.repo.Update(ctx, entry); err != nil {
		return nil, err
	}
	p.logger.Info("dead outbox entry reset for retry",
		zap.String("outbox_id", entry.ID.String()),
		zap.String("event_id", entry.EventID.String()),
	)
	return entry, nil
}

func (p *OutboxProcessor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanup(ctx)
		}
	}
}

// cleanup removes sent entries past retention. Dead and unsent entries are never removed.
func (p *OutboxProcessor) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to cleanup old entries", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("cleaned up old outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
