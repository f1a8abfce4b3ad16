package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghantakiran/axion-stock-sub012/internal/model"
)

// Sink batches routed-message records and writes them to the message_audit
// table.
type Sink struct {
	cfg        Config
	instanceID string
	logger     *slog.Logger

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []deliveryRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics SinkMetrics
}

// NewSink creates a new audit sink for this gateway instance.
func NewSink(cfg Config, instanceID string, db *pgxpool.Pool, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		cfg:        cfg,
		instanceID: instanceID,
		db:         db,
		logger:     logger,
		batch:      make([]deliveryRow, 0, cfg.BatchSize),
	}
}

// Start begins the periodic flush loop.
func (s *Sink) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.flushTicker = time.NewTicker(s.cfg.FlushInterval)

	s.wg.Add(1)
	go s.flushLoop()

	s.logger.Info("audit sink started",
		"batch_size", s.cfg.BatchSize,
		"flush_interval", s.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the sink.
func (s *Sink) Stop(ctx context.Context) error {
	s.logger.Info("stopping audit sink")

	if s.cancel != nil {
		s.cancel()
	}

	if s.flushTicker != nil {
		s.flushTicker.Stop()
	}

	// Wait for goroutine
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit sink stopped")
	case <-ctx.Done():
		s.logger.Warn("audit sink stop timed out")
	}

	// Final flush
	s.flush()

	return nil
}

// Stats returns current metrics.
func (s *Sink) Stats() SinkMetrics {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return s.metrics
}

// Record adds one routed message to the batch. delivered is how many of the
// message's targets actually accepted it. Recording never blocks on the
// database; a full batch flushes inline.
func (s *Sink) Record(msg model.Message, delivered int) {
	row := s.transform(msg, delivered)

	s.batchMu.Lock()
	s.batch = append(s.batch, row)
	shouldFlush := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()

	if shouldFlush {
		s.flush()
	}
}

// flushLoop periodically flushes the batch.
func (s *Sink) flushLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.flushTicker.C:
			s.flush()
		}
	}
}

// transform converts a routed message to a deliveryRow.
func (s *Sink) transform(msg model.Message, delivered int) deliveryRow {
	return deliveryRow{
		MessageID:    msg.ID,
		Channel:      msg.Channel,
		SenderID:     msg.SenderID,
		Priority:     msg.Priority.String(),
		CreatedAt:    msg.CreatedAt.UnixMicro(),
		RoutedAt:     time.Now().UnixMicro(),
		TargetCount:  len(msg.Targets),
		Delivered:    delivered,
		PayloadBytes: len(msg.Payload),
		InstanceID:   s.instanceID,
	}
}

// flush writes the current batch to the database.
func (s *Sink) flush() {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := s.batch
	s.batch = make([]deliveryRow, 0, s.cfg.BatchSize)
	s.batchMu.Unlock()

	start := time.Now()

	conflicts, err := s.batchInsert(batch)
	if err != nil {
		s.logger.Error("batch insert failed", "error", err, "count", len(batch))
		s.batchMu.Lock()
		s.metrics.Errors++
		s.batchMu.Unlock()
		return
	}

	s.batchMu.Lock()
	s.metrics.Inserts += int64(len(batch) - conflicts)
	s.metrics.Conflicts += int64(conflicts)
	s.metrics.Flushes++
	s.batchMu.Unlock()

	s.logger.Debug("flushed audit rows",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (s *Sink) batchInsert(rows []deliveryRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO message_audit (message_id, channel, sender_id, priority, created_at, routed_at, target_count, delivered_count, payload_bytes, instance_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (message_id) DO NOTHING
		`, r.MessageID, r.Channel, r.SenderID, r.Priority, r.CreatedAt, r.RoutedAt, r.TargetCount, r.Delivered, r.PayloadBytes, r.InstanceID)
	}

	results := s.db.SendBatch(s.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
