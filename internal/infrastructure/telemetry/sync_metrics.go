package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/erp/invsync/internal/domain/shared"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SyncMetrics records the outcomes of event production and consumption.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	logger *zap.Logger

	dispatchTotal     *Counter
	outboxPublished   *Counter
	statusLinesTotal  *Counter
	resolutionsTotal  *Counter
	lotsPostedTotal   *Counter
	replicaApplyTotal *Counter
	handleDuration    *Histogram
	outboxBacklog     *Gauge

	backlog  OutboxBacklogProvider
	stopChan chan struct{}
	stopOnce sync.Once
}

// OutboxBacklogProvider reports outbox entry counts per status
type OutboxBacklogProvider interface {
	CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error)
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter   metric.Meter
	Logger  *zap.Logger
	Backlog OutboxBacklogProvider
}

// NewSyncMetrics creates the sync instruments on the given meter.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &SyncMetrics{
		logger:   logger,
		backlog:  cfg.Backlog,
		stopChan: make(chan struct{}),
	}

	in := NewInstruments(cfg.Meter)
	m.dispatchTotal = in.Counter("invsync_dispatch_total",
		"Deliveries handled by consumers, by outcome", "{deliveries}")
	m.outboxPublished = in.Counter("invsync_outbox_published_total",
		"Outbox entries accepted by the broker", "{events}")
	m.statusLinesTotal = in.Counter("invsync_status_lines_total",
		"Product status update lines, by decision", "{lines}")
	m.resolutionsTotal = in.Counter("invsync_identity_resolutions_total",
		"Identity resolutions performed during intake", "{resolutions}")
	m.lotsPostedTotal = in.Counter("invsync_lots_posted_total",
		"Lots posted to the catalog", "{lots}")
	m.replicaApplyTotal = in.Counter("invsync_replica_apply_total",
		"Replica change sets applied", "{changes}")
	m.handleDuration = in.Histogram("invsync_handle_duration_seconds",
		"Time spent handling one delivery", "s", DispatchDurationBuckets)
	m.outboxBacklog = in.Gauge("invsync_outbox_backlog",
		"Outbox entries per status", "{events}")
	if err := in.Err(); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordDispatch counts one delivery outcome
func (m *SyncMetrics) RecordDispatch(ctx context.Context, consumer, eventType, outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.Inc(ctx, AttrConsumer.String(consumer), AttrEventType.String(eventType), AttrOutcome.String(outcome))
}

// RecordHandleDuration records how long a handler took
func (m *SyncMetrics) RecordHandleDuration(ctx context.Context, eventType string, d time.Duration) {
	if m == nil {
		return
	}
	m.handleDuration.RecordDuration(ctx, d, AttrEventType.String(eventType))
}

// RecordOutboxPublished counts entries accepted by the broker
func (m *SyncMetrics) RecordOutboxPublished(ctx context.Context, eventType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.outboxPublished.Add(ctx, int64(n), AttrEventType.String(eventType))
}

// RecordStatusLine counts one applied, unchanged, stale or missing status line
func (m *SyncMetrics) RecordStatusLine(ctx context.Context, targetStatus, outcome string) {
	if m == nil {
		return
	}
	m.statusLinesTotal.Inc(ctx, AttrTargetStatus.String(targetStatus), AttrOutcome.String(outcome))
}

// RecordResolution counts one identity resolution result
func (m *SyncMetrics) RecordResolution(ctx context.Context, resolution string) {
	if m == nil {
		return
	}
	m.resolutionsTotal.Inc(ctx, AttrResolution.String(resolution))
}

// RecordLotPosted counts a posted lot
func (m *SyncMetrics) RecordLotPosted(ctx context.Context) {
	if m == nil {
		return
	}
	m.lotsPostedTotal.Inc(ctx)
}

// RecordReplicaApply counts one replica change set
func (m *SyncMetrics) RecordReplicaApply(ctx context.Context, entity, outcome string) {
	if m == nil {
		return
	}
	m.replicaApplyTotal.Inc(ctx, AttrEntity.String(entity), AttrOutcome.String(outcome))
}

// StartBacklogCollection samples the outbox backlog every interval until Stop is called
func (m *SyncMetrics) StartBacklogCollection(ctx context.Context, interval time.Duration) {
	if m == nil || m.backlog == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.collectBacklog(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopChan:
				return
			case <-ticker.C:
				m.collectBacklog(ctx)
			}
		}
	}()
}

func (m *SyncMetrics) collectBacklog(ctx context.Context) {
	counts, err := m.backlog.CountByStatus(ctx)
	if err != nil {
		m.logger.Warn("Failed to collect outbox backlog", zap.Error(err))
		return
	}
	for status, count := range counts {
		m.outboxBacklog.Record(ctx, count, AttrOutboxStatus.String(string(status)))
	}
}

// Stop stops the periodic backlog collection
func (m *SyncMetrics) Stop() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

// MetricsError represents an error in metrics setup
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// ErrMeterNil is returned when a nil meter is provided
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}
