package model

import (
	"testing"
	"time"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   string
		want Priority
	}{
		{"low", PriorityLow},
		{"normal", PriorityNormal},
		{"high", PriorityHigh},
		{"critical", PriorityCritical},
	}

	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		if err != nil {
			t.Errorf("ParsePriority(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePriority(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParsePriority_Unknown(t *testing.T) {
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("ParsePriority(\"urgent\") should fail, got nil error")
	}
	if _, err := ParsePriority(""); err == nil {
		t.Error("ParsePriority(\"\") should fail, got nil error")
	}
}

func TestPriority_Ordering(t *testing.T) {
	if !(PriorityLow < PriorityNormal && PriorityNormal < PriorityHigh && PriorityHigh < PriorityCritical) {
		t.Error("priority constants must order low < normal < high < critical")
	}
}

func TestPriority_String(t *testing.T) {
	if got := PriorityCritical.String(); got != "critical" {
		t.Errorf("String() = %q, want %q", got, "critical")
	}
	if got := Priority(42).String(); got != "priority(42)" {
		t.Errorf("String() = %q, want %q", got, "priority(42)")
	}
}

func TestNewBroadcast(t *testing.T) {
	before := time.Now()
	m := NewBroadcast("prices", []byte(`{"sym":"AXN"}`))

	if m.ID == "" {
		t.Error("ID should be generated")
	}
	if m.Channel != "prices" {
		t.Errorf("Channel = %q, want %q", m.Channel, "prices")
	}
	if m.Priority != PriorityNormal {
		t.Errorf("Priority = %v, want %v", m.Priority, PriorityNormal)
	}
	if m.Targets != nil {
		t.Errorf("Targets = %v, want nil before routing", m.Targets)
	}
	if m.CreatedAt.Before(before) {
		t.Error("CreatedAt should be stamped at construction")
	}
}

func TestNewUnicast(t *testing.T) {
	m := NewUnicast("conn-1", []byte("x"), WithPriority(PriorityCritical), WithSender("user-9"))

	if m.Channel != "" {
		t.Errorf("Channel = %q, want empty", m.Channel)
	}
	if len(m.Targets) != 1 || m.Targets[0] != "conn-1" {
		t.Errorf("Targets = %v, want [conn-1]", m.Targets)
	}
	if m.Priority != PriorityCritical {
		t.Errorf("Priority = %v, want %v", m.Priority, PriorityCritical)
	}
	if m.SenderID != "user-9" {
		t.Errorf("SenderID = %q, want %q", m.SenderID, "user-9")
	}
}

func TestNewMulticast_CopiesTargets(t *testing.T) {
	ids := []string{"a", "b"}
	m := NewMulticast(ids, nil)

	ids[0] = "mutated"
	if m.Targets[0] != "a" {
		t.Errorf("Targets[0] = %q, want %q (caller slice must not be shared)", m.Targets[0], "a")
	}
}

func TestMessage_UniqueIDs(t *testing.T) {
	a := NewBroadcast("c", nil)
	b := NewBroadcast("c", nil)
	if a.ID == b.ID {
		t.Errorf("two messages share ID %q", a.ID)
	}
}

func TestMessage_Clone(t *testing.T) {
	m := NewMulticast([]string{"a", "b"}, []byte("p"))
	c := m.Clone()

	c.Targets[0] = "z"
	if m.Targets[0] != "a" {
		t.Errorf("Clone shares Targets: original mutated to %q", m.Targets[0])
	}
	if c.ID != m.ID || c.Priority != m.Priority {
		t.Error("Clone should preserve scalar fields")
	}
}
