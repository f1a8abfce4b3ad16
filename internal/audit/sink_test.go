package audit

import (
	"context"
	"testing"
	"time"

	"github.com/ghantakiran/axion-stock-sub012/internal/model"
)

func TestSink_Transform(t *testing.T) {
	s := NewSink(DefaultConfig(), "gw-1", nil, nil)

	createdAt := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	msg := model.Message{
		ID:        "11111111-2222-3333-4444-555555555555",
		Channel:   "prices",
		Payload:   []byte(`{"sym":"AXN","px":42.5}`),
		Priority:  model.PriorityHigh,
		CreatedAt: createdAt,
		SenderID:  "feed-1",
		Targets:   []string{"conn-1", "conn-2", "conn-3"},
	}

	row := s.transform(msg, 2)

	if row.MessageID != msg.ID {
		t.Errorf("MessageID = %s, want %s", row.MessageID, msg.ID)
	}
	if row.Channel != "prices" {
		t.Errorf("Channel = %s, want prices", row.Channel)
	}
	if row.SenderID != "feed-1" {
		t.Errorf("SenderID = %s, want feed-1", row.SenderID)
	}
	if row.Priority != "high" {
		t.Errorf("Priority = %s, want high", row.Priority)
	}
	if row.CreatedAt != createdAt.UnixMicro() {
		t.Errorf("CreatedAt = %d, want %d", row.CreatedAt, createdAt.UnixMicro())
	}
	if row.RoutedAt == 0 {
		t.Error("RoutedAt = 0, want stamped")
	}
	if row.TargetCount != 3 {
		t.Errorf("TargetCount = %d, want 3", row.TargetCount)
	}
	if row.Delivered != 2 {
		t.Errorf("Delivered = %d, want 2", row.Delivered)
	}
	if row.PayloadBytes != len(msg.Payload) {
		t.Errorf("PayloadBytes = %d, want %d", row.PayloadBytes, len(msg.Payload))
	}
	if row.InstanceID != "gw-1" {
		t.Errorf("InstanceID = %s, want gw-1", row.InstanceID)
	}
}

func TestSink_Record_AddsToBatch(t *testing.T) {
	cfg := Config{
		BatchSize:     100,
		FlushInterval: time.Hour,
	}
	s := NewSink(cfg, "gw-1", nil, nil)

	msg := model.NewBroadcast("prices", []byte("tick"))
	s.Record(msg, 0)

	s.batchMu.Lock()
	batchLen := len(s.batch)
	s.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestSink_Lifecycle(t *testing.T) {
	cfg := Config{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	s := NewSink(cfg, "gw-1", nil, nil)

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestSink_Stats(t *testing.T) {
	s := NewSink(DefaultConfig(), "gw-1", nil, nil)

	stats := s.Stats()

	if stats.Inserts != 0 {
		t.Errorf("initial Inserts = %d, want 0", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("initial Errors = %d, want 0", stats.Errors)
	}
	if stats.Flushes != 0 {
		t.Errorf("initial Flushes = %d, want 0", stats.Flushes)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BatchSize != 500 {
		t.Errorf("BatchSize = %d, want 500", cfg.BatchSize)
	}
	if cfg.FlushInterval != 2*time.Second {
		t.Errorf("FlushInterval = %v, want 2s", cfg.FlushInterval)
	}
}
