package event

import (
	"context"
	"errors"
	"time"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxService exposes the outbound outbox and the inbound dead letters to operators
type OutboxService struct {
	repo        shared.OutboxRepository
	deadLetters shared.DeadLetterRepository
	logger      *zap.Logger
}

// NewOutboxService creates a new outbox service
func NewOutboxService(
	repo shared.OutboxRepository,
	deadLetters shared.DeadLetterRepository,
	logger *zap.Logger,
) *OutboxService {
	return &OutboxService{
		repo:        repo,
		deadLetters: deadLetters,
		logger:      logger,
	}
}

// OutboxEntryDTO represents an outbox entry data transfer object
type OutboxEntryDTO struct {
	ID             uuid.UUID  `json:"id"`
	EventID        uuid.UUID  `json:"event_id"`
	EventType      string     `json:"event_type"`
	IdempotencyKey string     `json:"idempotency_key"`
	AggregateID    uuid.UUID  `json:"aggregate_id"`
	AggregateType  string     `json:"aggregate_type"`
	Status         string     `json:"status"`
	RetryCount     int        `json:"retry_count"`
	MaxRetries     int        `json:"max_retries"`
	LastError      string     `json:"last_error,omitempty"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// DeadLetterDTO represents a parked inbound message
type DeadLetterDTO struct {
	ID             uuid.UUID  `json:"id"`
	EventID        *uuid.UUID `json:"event_id,omitempty"`
	EventType      string     `json:"event_type,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	Consumer       string     `json:"consumer"`
	Code           string     `json:"code"`
	Reason         string     `json:"reason"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
}

// OutboxFilter represents filter for querying outbox entries
type OutboxFilter struct {
	Page     int `form:"page,omitempty" binding:"omitempty,min=1"`
	PageSize int `form:"page_size,omitempty" binding:"omitempty,min=1,max=100"`
}

func (f OutboxFilter) normalize() (int, int) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	pageSize := f.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// ListResult is a page of entries
type ListResult[T any] struct {
	Entries  []T   `json:"entries"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// OutboxStatsDTO represents outbox statistics
type OutboxStatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// GetDeadEntries lists outbox entries that exhausted their publish retries
func (s *OutboxService) GetDeadEntries(ctx context.Context, filter OutboxFilter) (*ListResult[OutboxEntryDTO], error) {
	page, pageSize := filter.normalize()

	entries, total, err := s.repo.FindDead(ctx, page, pageSize)
	if err != nil {
		s.logger.Error("Failed to find dead outbox entries", zap.Error(err))
		return nil, shared.NewTransientError("failed to retrieve dead outbox entries", err)
	}

	dtos := make([]OutboxEntryDTO, len(entries))
	for i, entry := range entries {
		dtos[i] = toOutboxEntryDTO(entry)
	}
	return &ListResult[OutboxEntryDTO]{Entries: dtos, Total: total, Page: page, PageSize: pageSize}, nil
}

// GetDeadLetters lists inbound messages parked by the consumers, newest first
func (s *OutboxService) GetDeadLetters(ctx context.Context, filter OutboxFilter) (*ListResult[DeadLetterDTO], error) {
	page, pageSize := filter.normalize()

	letters, total, err := s.deadLetters.FindRecent(ctx, page, pageSize)
	if err != nil {
		s.logger.Error("Failed to find dead letters", zap.Error(err))
		return nil, shared.NewTransientError("failed to retrieve dead letters", err)
	}

	dtos := make([]DeadLetterDTO, len(letters))
	for i, dl := range letters {
		dtos[i] = DeadLetterDTO{
			ID:             dl.ID,
			EventID:        dl.EventID,
			EventType:      dl.EventType,
			IdempotencyKey: dl.IdempotencyKey,
			Consumer:       dl.Consumer,
			Code:           dl.Code,
			Reason:         dl.Reason,
			Body:           string(dl.Body),
			CreatedAt:      dl.CreatedAt,
		}
	}
	return &ListResult[DeadLetterDTO]{Entries: dtos, Total: total, Page: page, PageSize: pageSize}, nil
}

// GetEntry retrieves a single outbox entry by ID
func (s *OutboxService) GetEntry(ctx context.Context, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RetryDeadEntry resets a dead entry so the processor publishes it again
func (s *OutboxService) RetryDeadEntry(ctx context.Context, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := entry.ResetForRetry(); err != nil {
		return nil, shared.NewBusinessRuleViolation("OUTBOX_NOT_DEAD", err.Error())
	}

	if err := s.repo.Update(ctx, entry); err != nil {
		s.logger.Error("Failed to update outbox entry", zap.Error(err), zap.String("id", id.String()))
		return nil, shared.NewTransientError("failed to retry outbox entry", err)
	}

	s.logger.Info("Dead outbox entry reset for retry",
		zap.String("id", id.String()),
		zap.String("event_type", entry.EventType),
	)

	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RetryAllDeadEntries resets every dead entry and returns how many were reset
func (s *OutboxService) RetryAllDeadEntries(ctx context.Context) (int64, error) {
	var count int64
	const pageSize = 100

	for {
		// reset entries leave the dead set, so the first page is always the next batch
		entries, _, err := s.repo.FindDead(ctx, 1, pageSize)
		if err != nil {
			s.logger.Error("Failed to find dead outbox entries", zap.Error(err))
			return count, shared.NewTransientError("failed to retrieve dead outbox entries", err)
		}
		if len(entries) == 0 {
			break
		}

		reset := 0
		for _, entry := range entries {
			if err := entry.ResetForRetry(); err != nil {
				continue
			}
			if err := s.repo.Update(ctx, entry); err != nil {
				s.logger.Error("Failed to update outbox entry", zap.Error(err), zap.String("id", entry.ID.String()))
				continue
			}
			reset++
		}
		count += int64(reset)

		if reset == 0 || len(entries) < pageSize {
			break
		}
	}

	s.logger.Info("Retried dead outbox entries", zap.Int64("count", count))
	return count, nil
}

// GetStats returns outbox statistics
func (s *OutboxService) GetStats(ctx context.Context) (*OutboxStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to get outbox stats", zap.Error(err))
		return nil, shared.NewTransientError("failed to get outbox stats", err)
	}

	var total int64
	for _, count := range counts {
		total += count
	}

	return &OutboxStatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
		Total:      total,
	}, nil
}

func (s *OutboxService) find(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) || (err == nil && entry == nil) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		s.logger.Error("Failed to find outbox entry", zap.Error(err), zap.String("id", id.String()))
		return nil, shared.NewTransientError("failed to load outbox entry", err)
	}
	return entry, nil
}

func toOutboxEntryDTO(entry *shared.OutboxEntry) OutboxEntryDTO {
	return OutboxEntryDTO{
		ID:             entry.ID,
		EventID:        entry.EventID,
		EventType:      entry.EventType,
		IdempotencyKey: entry.IdempotencyKey,
		AggregateID:    entry.AggregateID,
		AggregateType:  entry.AggregateType,
		Status:         string(entry.Status),
		RetryCount:     entry.RetryCount,
		MaxRetries:     entry.MaxRetries,
		LastError:      entry.LastError,
		NextRetryAt:    entry.NextRetryAt,
		ProcessedAt:    entry.ProcessedAt,
		CreatedAt:      entry.CreatedAt,
		UpdatedAt:      entry.UpdatedAt,
	}
}
