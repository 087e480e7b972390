package event

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockOutboxRepoForService is a mock implementation for testing OutboxService
type mockOutboxRepoForService struct {
	entries map[uuid.UUID]*shared.OutboxEntry
	failAll bool
}

func newMockOutboxRepoForService() *mockOutboxRepoForService {
	return &mockOutboxRepoForService{
		entries: make(map[uuid.UUID]*shared.OutboxEntry),
	}
}

func (r *mockOutboxRepoForService) add(status shared.OutboxStatus) *shared.OutboxEntry {
	entry := &shared.OutboxEntry{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		EventType:     "catalog.product.status_updated",
		AggregateID:   uuid.New(),
		AggregateType: "Invoice",
		Status:        status,
		MaxRetries:    shared.DefaultMaxRetries,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if status == shared.OutboxStatusDead {
		entry.RetryCount = shared.DefaultMaxRetries
		entry.LastError = "broker unavailable"
	}
	r.entries[entry.ID] = entry
	return entry
}

func (r *mockOutboxRepoForService) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *mockOutboxRepoForService) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *mockOutboxRepoForService) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *mockOutboxRepoForService) FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	if r.failAll {
		return nil, 0, errors.New("connection refused")
	}
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusDead {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	total := int64(len(result))

	start := (page - 1) * pageSize
	if start >= len(result) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r *mockOutboxRepoForService) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	if e, ok := r.entries[id]; ok {
		return e, nil
	}
	return nil, shared.ErrNotFound
}

func (r *mockOutboxRepoForService) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *mockOutboxRepoForService) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	r.entries[entry.ID] = entry
	return nil
}

func (r *mockOutboxRepoForService) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (r *mockOutboxRepoForService) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (r *mockOutboxRepoForService) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type mockDeadLetterRepo struct {
	letters []*shared.DeadLetter
}

func (r *mockDeadLetterRepo) Save(ctx context.Context, dl *shared.DeadLetter) error {
	r.letters = append(r.letters, dl)
	return nil
}

func (r *mockDeadLetterRepo) FindRecent(ctx context.Context, page, pageSize int) ([]*shared.DeadLetter, int64, error) {
	return r.letters, int64(len(r.letters)), nil
}

func newTestOutboxService() (*OutboxService, *mockOutboxRepoForService, *mockDeadLetterRepo) {
	repo := newMockOutboxRepoForService()
	letters := &mockDeadLetterRepo{}
	return NewOutboxService(repo, letters, zap.NewNop()), repo, letters
}

func TestOutboxService_GetDeadEntries(t *testing.T) {
	service, repo, _ := newTestOutboxService()

	for i := 0; i < 5; i++ {
		repo.add(shared.OutboxStatusDead)
	}
	repo.add(shared.OutboxStatusPending)

	result, err := service.GetDeadEntries(context.Background(), OutboxFilter{Page: 1, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Total)
	assert.Len(t, result.Entries, 3)
	assert.Equal(t, 3, result.PageSize)

	for _, entry := range result.Entries {
		assert.Equal(t, "DEAD", entry.Status)
		assert.Equal(t, "broker unavailable", entry.LastError)
	}
}

func TestOutboxService_GetDeadEntries_DefaultsPaging(t *testing.T) {
	service, _, _ := newTestOutboxService()

	result, err := service.GetDeadEntries(context.Background(), OutboxFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 20, result.PageSize)
	assert.Empty(t, result.Entries)
}

func TestOutboxService_GetDeadEntries_StoreFailureIsTransient(t *testing.T) {
	service, repo, _ := newTestOutboxService()
	repo.failAll = true

	_, err := service.GetDeadEntries(context.Background(), OutboxFilter{})
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindTransient))
}

func TestOutboxService_GetDeadLetters(t *testing.T) {
	service, _, letters := newTestOutboxService()

	cause := shared.NewValidationError("INVALID_ENVELOPE", "missing event_id")
	require.NoError(t, letters.Save(context.Background(), shared.NewDeadLetter("catalog-status", nil, []byte("{bad"), cause)))

	result, err := service.GetDeadLetters(context.Background(), OutboxFilter{})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "catalog-status", result.Entries[0].Consumer)
	assert.Equal(t, "INVALID_ENVELOPE", result.Entries[0].Code)
	assert.Equal(t, "{bad", result.Entries[0].Body)
	assert.Nil(t, result.Entries[0].EventID)
}

func TestOutboxService_RetryDeadEntry(t *testing.T) {
	service, repo, _ := newTestOutboxService()
	dead := repo.add(shared.OutboxStatusDead)

	result, err := service.RetryDeadEntry(context.Background(), dead.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", result.Status)
	assert.Equal(t, 0, result.RetryCount)
	assert.Empty(t, result.LastError)
}

func TestOutboxService_RetryDeadEntry_NotFound(t *testing.T) {
	service, _, _ := newTestOutboxService()

	_, err := service.RetryDeadEntry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOutboxService_RetryDeadEntry_NotDead(t *testing.T) {
	service, repo, _ := newTestOutboxService()
	entry := repo.add(shared.OutboxStatusPending)

	_, err := service.RetryDeadEntry(context.Background(), entry.ID)
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindBusinessRule))
}

func TestOutboxService_GetStats(t *testing.T) {
	service, repo, _ := newTestOutboxService()

	statuses := []shared.OutboxStatus{
		shared.OutboxStatusPending,
		shared.OutboxStatusPending,
		shared.OutboxStatusProcessing,
		shared.OutboxStatusSent,
		shared.OutboxStatusSent,
		shared.OutboxStatusSent,
		shared.OutboxStatusFailed,
		shared.OutboxStatusDead,
	}
	for _, status := range statuses {
		repo.add(status)
	}

	stats, err := service.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.Processing)
	assert.Equal(t, int64(3), stats.Sent)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, int64(8), stats.Total)
}

func TestOutboxService_RetryAllDeadEntries(t *testing.T) {
	service, repo, _ := newTestOutboxService()

	for i := 0; i < 3; i++ {
		repo.add(shared.OutboxStatusDead)
	}
	pending := repo.add(shared.OutboxStatusPending)

	count, err := service.RetryAllDeadEntries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	for _, entry := range repo.entries {
		assert.Equal(t, shared.OutboxStatusPending, entry.Status)
		if entry.ID != pending.ID {
			assert.Equal(t, 0, entry.RetryCount)
		}
	}
}
