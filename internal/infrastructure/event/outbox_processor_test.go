package event

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockOutboxRepository is a mock implementation for testing
type mockOutboxRepository struct {
	mu               sync.Mutex
	entries          map[uuid.UUID]*shared.OutboxEntry
	findPendingFn    func(ctx context.Context, limit int) ([]*shared.OutboxEntry, error)
	findRetryableFn  func(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error)
	markProcessingFn func(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error)
	updateFn         func(ctx context.Context, entry *shared.OutboxEntry) error
	deleteFn         func(ctx context.Context, before time.Time) (int64, error)
	requeueFn        func(ctx context.Context, before time.Time) (int64, error)
}

func newMockOutboxRepository() *mockOutboxRepository {
	return &mockOutboxRepository{
		entries: make(map[uuid.UUID]*shared.OutboxEntry),
	}
}

func (r *mockOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *mockOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	if r.findPendingFn != nil {
		return r.findPendingFn(ctx, limit)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusPending {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *mockOutboxRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	if r.findRetryableFn != nil {
		return r.findRetryableFn(ctx, before, limit)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusFailed && e.NextRetryAt != nil && !e.NextRetryAt.After(before) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *mockOutboxRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	if r.markProcessingFn != nil {
		return r.markProcessingFn(ctx, ids)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, id := range ids {
		if e, ok := r.entries[id]; ok {
			e.Status = shared.OutboxStatusProcessing
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *mockOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	if r.updateFn != nil {
		return r.updateFn(ctx, entry)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID] = entry
	return nil
}

func (r *mockOutboxRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	if r.deleteFn != nil {
		return r.deleteFn(ctx, before)
	}
	return 0, nil
}

func (r *mockOutboxRepository) FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusDead {
			result = append(result, e)
		}
	}
	return result, int64(len(result)), nil
}

func (r *mockOutboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e, nil
	}
	return nil, shared.ErrNotFound
}

func (r *mockOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (r *mockOutboxRepository) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	if r.requeueFn != nil {
		return r.requeueFn(ctx, before)
	}
	return 0, nil
}

func (r *mockOutboxRepository) get(id uuid.UUID) *shared.OutboxEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id]
}

// recordingPublisher collects published envelopes
type recordingPublisher struct {
	mu        sync.Mutex
	envelopes []*shared.Envelope
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, envelopes ...*shared.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.envelopes = append(p.envelopes, envelopes...)
	return nil
}

func (p *recordingPublisher) published() []*shared.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*shared.Envelope(nil), p.envelopes...)
}

func newPendingEntry(eventType string) *shared.OutboxEntry {
	return shared.NewOutboxEntry(newTestEvent(eventType), []byte(`{"note":"hello"}`))
}

func newTestProcessor(repo shared.OutboxRepository, publisher shared.EventPublisher) *OutboxProcessor {
	cfg := DefaultOutboxProcessorConfig()
	cfg.CleanupEnabled = false
	return NewOutboxProcessor(repo, publisher, cfg, zap.NewNop(), nil)
}

func TestOutboxProcessor_ProcessesPendingEntries(t *testing.T) {
	repo := newMockOutboxRepository()
	publisher := &recordingPublisher{}
	first := newPendingEntry("lot.posted")
	second := newPendingEntry("product.status.update")
	second.CreatedAt = first.CreatedAt.Add(time.Millisecond)
	require.NoError(t, repo.Save(context.Background(), first, second))

	sent, err := newTestProcessor(repo, publisher).ProcessOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	published := publisher.published()
	require.Len(t, published, 2)
	assert.Equal(t, first.EventID, published[0].EventID)
	assert.Equal(t, "invsync", published[0].ProducerID)
	assert.Equal(t, first.IdempotencyKey, published[0].IdempotencyKey)
	assert.Equal(t, shared.OutboxStatusSent, repo.get(first.ID).Status)
	assert.NotNil(t, repo.get(first.ID).ProcessedAt)
}

func TestOutboxProcessor_FailedPublishSchedulesRetry(t *testing.T) {
	repo := newMockOutboxRepository()
	publisher := &recordingPublisher{err: shared.NewTransientError("broker down", errors.New("refused"))}
	entry := newPendingEntry("lot.posted")
	require.NoError(t, repo.Save(context.Background(), entry))

	sent, err := newTestProcessor(repo, publisher).ProcessOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, sent)
	stored := repo.get(entry.ID)
	assert.Equal(t, shared.OutboxStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Contains(t, stored.LastError, "broker down")
	require.NotNil(t, stored.NextRetryAt)
}

func TestOutboxProcessor_RetriesDueEntries(t *testing.T) {
	repo := newMockOutboxRepository()
	publisher := &recordingPublisher{}
	entry := newPendingEntry("lot.posted")
	entry.MarkFailed("earlier failure")
	past := time.Now().Add(-time.Second)
	entry.NextRetryAt = &past
	require.NoError(t, repo.Save(context.Background(), entry))

	sent, err := newTestProcessor(repo, publisher).ProcessOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, shared.OutboxStatusSent, repo.get(entry.ID).Status)
}

func TestOutboxProcessor_ExhaustedEntryIsParked(t *testing.T) {
	repo := newMockOutboxRepository()
	publisher := &recordingPublisher{err: errors.New("broker down")}
	entry := newPendingEntry("lot.posted")
	entry.MaxRetries = 1
	require.NoError(t, repo.Save(context.Background(), entry))

	_, err := newTestProcessor(repo, publisher).ProcessOnce(context.Background())

	require.NoError(t, err)
	assert.True(t, repo.get(entry.ID).IsDead())
}

func TestOutboxProcessor_RequeuesStaleBeforePolling(t *testing.T) {
	repo := newMockOutboxRepository()
	var order []string
	var cutoff time.Time
	repo.requeueFn = func(_ context.Context, before time.Time) (int64, error) {
		order = append(order, "requeue")
		cutoff = before
		return 2, nil
	}
	repo.findPendingFn = func(context.Context, int) ([]*shared.OutboxEntry, error) {
		order = append(order, "pending")
		return nil, nil
	}

	_, err := newTestProcessor(repo, &recordingPublisher{}).ProcessOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"requeue", "pending"}, order)
	assert.WithinDuration(t, time.Now().Add(-5*time.Minute), cutoff, time.Minute)
}

func TestOutboxProcessor_PropagatesRepositoryErrors(t *testing.T) {
	repo := newMockOutboxRepository()
	repo.findPendingFn = func(context.Context, int) ([]*shared.OutboxEntry, error) {
		return nil, errors.New("db down")
	}

	_, err := newTestProcessor(repo, &recordingPublisher{}).ProcessOnce(context.Background())

	assert.ErrorContains(t, err, "db down")
}

func TestOutboxProcessor_FailedSentUpdateIsNotCounted(t *testing.T) {
	repo := newMockOutboxRepository()
	entry := newPendingEntry("lot.posted")
	require.NoError(t, repo.Save(context.Background(), entry))
	repo.updateFn = func(context.Context, *shared.OutboxEntry) error {
		return errors.New("db down")
	}
	publisher := &recordingPublisher{}

	sent, err := newTestProcessor(repo, publisher).ProcessOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, publisher.published(), 1)
}

func TestOutboxProcessor_RetryDead(t *testing.T) {
	repo := newMockOutboxRepository()
	p := newTestProcessor(repo, &recordingPublisher{})

	dead := newPendingEntry("lot.posted")
	dead.MaxRetries = 1
	dead.MarkFailed("boom")
	pending := newPendingEntry("lot.posted")
	require.NoError(t, repo.Save(context.Background(), dead, pending))

	reset, err := p.RetryDead(context.Background(), dead.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusPending, reset.Status)
	assert.Zero(t, reset.RetryCount)
	assert.Empty(t, reset.LastError)

	_, err = p.RetryDead(context.Background(), pending.ID)
	assert.True(t, shared.IsKind(err, shared.KindBusinessRule))

	_, err = p.RetryDead(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOutboxProcessor_StartStop(t *testing.T) {
	repo := newMockOutboxRepository()
	publisher := &recordingPublisher{}
	entry := newPendingEntry("lot.posted")
	require.NoError(t, repo.Save(context.Background(), entry))

	cfg := DefaultOutboxProcessorConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.CleanupInterval = 10 * time.Millisecond
	var cleaned sync.Once
	cleanupCalled := make(chan struct{})
	repo.deleteFn = func(context.Context, time.Time) (int64, error) {
		cleaned.Do(func() { close(cleanupCalled) })
		return 0, nil
	}
	p := NewOutboxProcessor(repo, publisher, cfg, zap.NewNop(), nil)

	require.NoError(t, p.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return len(publisher.published()) == 1
	}, time.Second, 10*time.Millisecond)
	select {
	case <-cleanupCalled:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
}

func TestDefaultOutboxProcessorConfig(t *testing.T) {
	cfg := DefaultOutboxProcessorConfig()

	assert.Equal(t, "invsync", cfg.ProducerID)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.StaleAfter)
	assert.True(t, cfg.CleanupEnabled)
}
