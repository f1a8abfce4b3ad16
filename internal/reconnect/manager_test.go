package reconnect

import (
	"testing"
	"time"

	"github.com/ghantakiran/axion-stock-sub012/internal/model"
)

func testConfig() Config {
	return Config{Window: 5 * time.Minute, MaxAttempts: 3}
}

func TestStartSession(t *testing.T) {
	m := NewManager(testConfig())

	s := m.StartSession("alice", "conn-1")
	if s.ID == "" {
		t.Error("StartSession() returned empty session id")
	}
	if s.State != SessionPending {
		t.Errorf("State = %q, want %q", s.State, SessionPending)
	}
	if s.UserID != "alice" || s.ConnectionID != "conn-1" {
		t.Errorf("identity = %s/%s, want alice/conn-1", s.UserID, s.ConnectionID)
	}
	if s.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", s.MaxAttempts)
	}
	if s.AttemptCount != 0 {
		t.Errorf("AttemptCount = %d, want 0", s.AttemptCount)
	}
	if s.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}

	got, ok := m.GetSession(s.ID)
	if !ok {
		t.Fatal("GetSession() = false after start")
	}
	if got.ID != s.ID {
		t.Errorf("GetSession().ID = %q, want %q", got.ID, s.ID)
	}
}

func TestBufferMessage(t *testing.T) {
	m := NewManager(testConfig())

	// No pending session yet: buffering is a reported no-op.
	if m.BufferMessage("conn-1", model.NewBroadcast("prices", []byte("x"))) {
		t.Error("BufferMessage() without session = true, want false")
	}

	m.StartSession("alice", "conn-1")
	if !m.BufferMessage("conn-1", model.NewBroadcast("prices", []byte("x"))) {
		t.Error("BufferMessage() with pending session = false, want true")
	}
}

func TestStartSession_ResetsBuffer(t *testing.T) {
	m := NewManager(testConfig())

	m.StartSession("alice", "conn-1")
	m.BufferMessage("conn-1", model.NewBroadcast("prices", []byte("before")))

	// A fresh session for the same connection discards what came before.
	s2 := m.StartSession("alice", "conn-1")
	m.BufferMessage("conn-1", model.NewBroadcast("prices", []byte("after")))

	res := m.AttemptReconnect(s2.ID, "conn-2")
	if !res.Success {
		t.Fatal("AttemptReconnect() failed")
	}
	if res.MissedMessageCount != 1 {
		t.Fatalf("MissedMessageCount = %d, want 1", res.MissedMessageCount)
	}
	missed := m.MissedMessages(s2.ID)
	if string(missed[0].Payload) != "after" {
		t.Errorf("missed payload = %q, want %q", missed[0].Payload, "after")
	}
}

func TestAttemptReconnect_Success(t *testing.T) {
	m := NewManager(testConfig())

	s := m.StartSession("alice", "conn-1")
	for _, p := range []string{"m0", "m1", "m2"} {
		m.BufferMessage("conn-1", model.NewBroadcast("prices", []byte(p)))
	}

	res := m.AttemptReconnect(s.ID, "conn-2")
	if !res.Success {
		t.Fatal("AttemptReconnect() Success = false, want true")
	}
	if res.MissedMessageCount != 3 {
		t.Errorf("MissedMessageCount = %d, want 3", res.MissedMessageCount)
	}

	got, _ := m.GetSession(s.ID)
	if got.State != SessionReconnected {
		t.Errorf("State = %q, want %q", got.State, SessionReconnected)
	}
	if got.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", got.AttemptCount)
	}
	if got.LastAttemptAt.IsZero() {
		t.Error("LastAttemptAt is zero after attempt")
	}
	if got.ReconnectedAt == nil {
		t.Error("ReconnectedAt is nil after success")
	}
	if got.NewConnectionID != "conn-2" {
		t.Errorf("NewConnectionID = %q, want %q", got.NewConnectionID, "conn-2")
	}

	// Replay preserves buffering order.
	missed := m.MissedMessages(s.ID)
	for i, want := range []string{"m0", "m1", "m2"} {
		if string(missed[i].Payload) != want {
			t.Errorf("missed[%d] = %q, want %q", i, missed[i].Payload, want)
		}
	}

	// The buffer died with the pending state.
	if m.BufferMessage("conn-1", model.NewBroadcast("prices", []byte("late"))) {
		t.Error("BufferMessage() after reconnect = true, want false")
	}
}

func TestAttemptReconnect_TerminalStatesAreImmutable(t *testing.T) {
	m := NewManager(testConfig())

	s := m.StartSession("alice", "conn-1")
	if res := m.AttemptReconnect(s.ID, "conn-2"); !res.Success {
		t.Fatal("first AttemptReconnect() failed")
	}

	res := m.AttemptReconnect(s.ID, "conn-3")
	if res.Success {
		t.Error("AttemptReconnect() on reconnected session = success, want failure")
	}
	got, _ := m.GetSession(s.ID)
	if got.AttemptCount != 1 {
		t.Errorf("AttemptCount after rejected attempt = %d, want 1", got.AttemptCount)
	}
	if got.NewConnectionID != "conn-2" {
		t.Errorf("NewConnectionID = %q, want %q", got.NewConnectionID, "conn-2")
	}
}

func TestAttemptReconnect_UnknownSession(t *testing.T) {
	m := NewManager(testConfig())

	res := m.AttemptReconnect("no-such-session", "conn-2")
	if res.Success || res.MissedMessageCount != 0 {
		t.Errorf("AttemptReconnect(unknown) = %+v, want zero result", res)
	}
}

func TestAttemptReconnect_BudgetExhausted(t *testing.T) {
	m := NewManager(testConfig())

	s := m.StartSession("alice", "conn-1")
	m.BufferMessage("conn-1", model.NewBroadcast("prices", []byte("x")))

	// Burn the budget directly; a live client would have reconnected on
	// the first attempt, so the exhausted path is only reachable this way.
	m.mu.Lock()
	m.sessions[s.ID].AttemptCount = 3
	m.mu.Unlock()

	res := m.AttemptReconnect(s.ID, "conn-2")
	if res.Success {
		t.Error("AttemptReconnect() past budget = success, want failure")
	}

	got, _ := m.GetSession(s.ID)
	if got.State != SessionFailed {
		t.Errorf("State = %q, want %q", got.State, SessionFailed)
	}
	if got.AttemptCount != 4 {
		t.Errorf("AttemptCount = %d, want 4", got.AttemptCount)
	}
	if got.MissedMessages != nil {
		t.Errorf("MissedMessages = %v, want nil", got.MissedMessages)
	}

	// Failure discards the buffer.
	if m.BufferMessage("conn-1", model.NewBroadcast("prices", []byte("late"))) {
		t.Error("BufferMessage() after failure = true, want false")
	}

	// Failed is terminal.
	if res := m.AttemptReconnect(s.ID, "conn-2"); res.Success {
		t.Error("AttemptReconnect() on failed session = success, want failure")
	}
}

func TestAttemptReconnect_LastBudgetedAttemptSucceeds(t *testing.T) {
	m := NewManager(testConfig())

	s := m.StartSession("alice", "conn-1")
	m.mu.Lock()
	m.sessions[s.ID].AttemptCount = 2
	m.mu.Unlock()

	res := m.AttemptReconnect(s.ID, "conn-2")
	if !res.Success {
		t.Error("AttemptReconnect() on final budgeted attempt = failure, want success")
	}
	got, _ := m.GetSession(s.ID)
	if got.AttemptCount != 3 {
		t.Errorf("AttemptCount = %d, want 3", got.AttemptCount)
	}
}

func TestCanReconnect(t *testing.T) {
	m := NewManager(testConfig())

	if m.CanReconnect("no-such-session") {
		t.Error("CanReconnect(unknown) = true, want false")
	}

	s := m.StartSession("alice", "conn-1")
	if !m.CanReconnect(s.ID) {
		t.Error("CanReconnect(pending) = false, want true")
	}

	m.mu.Lock()
	m.sessions[s.ID].AttemptCount = 3
	m.mu.Unlock()
	if m.CanReconnect(s.ID) {
		t.Error("CanReconnect() with budget spent = true, want false")
	}

	s2 := m.StartSession("alice", "conn-9")
	m.AttemptReconnect(s2.ID, "conn-10")
	if m.CanReconnect(s2.ID) {
		t.Error("CanReconnect(reconnected) = true, want false")
	}
}

func TestSessions_Filters(t *testing.T) {
	m := NewManager(testConfig())

	a1 := m.StartSession("alice", "conn-1")
	m.StartSession("alice", "conn-2")
	m.StartSession("bob", "conn-3")
	m.AttemptReconnect(a1.ID, "conn-4")

	if got := len(m.Sessions("", "")); got != 3 {
		t.Errorf("Sessions(all) = %d, want 3", got)
	}
	if got := len(m.Sessions("alice", "")); got != 2 {
		t.Errorf("Sessions(alice) = %d, want 2", got)
	}
	if got := len(m.Sessions("", SessionPending)); got != 2 {
		t.Errorf("Sessions(pending) = %d, want 2", got)
	}

	got := m.Sessions("alice", SessionReconnected)
	if len(got) != 1 || got[0].ID != a1.ID {
		t.Errorf("Sessions(alice, reconnected) = %v, want [%s]", got, a1.ID)
	}
	if got := m.Sessions("carol", ""); got != nil {
		t.Errorf("Sessions(carol) = %v, want nil", got)
	}
}

func TestExpireSessions(t *testing.T) {
	m := NewManager(testConfig())

	old := m.StartSession("alice", "conn-1")
	fresh := m.StartSession("bob", "conn-2")
	done := m.StartSession("carol", "conn-3")
	m.AttemptReconnect(done.ID, "conn-4")

	m.mu.Lock()
	m.sessions[old.ID].CreatedAt = time.Now().Add(-time.Hour)
	m.sessions[done.ID].LastAttemptAt = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	if got := m.ExpireSessions(30 * time.Minute); got != 1 {
		t.Fatalf("ExpireSessions() = %d, want 1", got)
	}

	gotOld, _ := m.GetSession(old.ID)
	if gotOld.State != SessionExpired {
		t.Errorf("old State = %q, want %q", gotOld.State, SessionExpired)
	}
	gotFresh, _ := m.GetSession(fresh.ID)
	if gotFresh.State != SessionPending {
		t.Errorf("fresh State = %q, want %q", gotFresh.State, SessionPending)
	}
	// Terminal sessions are out of expiry's reach no matter their age.
	gotDone, _ := m.GetSession(done.ID)
	if gotDone.State != SessionReconnected {
		t.Errorf("done State = %q, want %q", gotDone.State, SessionReconnected)
	}

	// Expiry killed the buffer.
	if m.BufferMessage("conn-1", model.NewBroadcast("prices", []byte("late"))) {
		t.Error("BufferMessage() after expiry = true, want false")
	}
}

func TestExpireSessions_DefaultTimeout(t *testing.T) {
	m := NewManager(Config{Window: time.Minute, MaxAttempts: 3})

	s := m.StartSession("alice", "conn-1")
	m.mu.Lock()
	m.sessions[s.ID].CreatedAt = time.Now().Add(-2 * time.Minute)
	m.mu.Unlock()

	if got := m.ExpireSessions(0); got != 1 {
		t.Errorf("ExpireSessions(0) = %d, want 1", got)
	}
}

func TestExpireSessions_AgeBasis(t *testing.T) {
	m := NewManager(testConfig())

	// Recent attempt shields a session however old it is otherwise.
	attempted := m.StartSession("alice", "conn-1")
	m.mu.Lock()
	m.sessions[attempted.ID].CreatedAt = time.Now().Add(-time.Hour)
	m.sessions[attempted.ID].AttemptCount = 1
	m.sessions[attempted.ID].LastAttemptAt = time.Now()
	m.mu.Unlock()

	// A fresh session ages by its oldest buffered message.
	buffered := m.StartSession("bob", "conn-2")
	oldMsg := model.NewBroadcast("prices", []byte("stale"))
	oldMsg.CreatedAt = time.Now().Add(-time.Hour)
	m.BufferMessage("conn-2", oldMsg)

	if got := m.ExpireSessions(30 * time.Minute); got != 1 {
		t.Fatalf("ExpireSessions() = %d, want 1", got)
	}

	gotAttempted, _ := m.GetSession(attempted.ID)
	if gotAttempted.State != SessionPending {
		t.Errorf("attempted State = %q, want %q", gotAttempted.State, SessionPending)
	}
	gotBuffered, _ := m.GetSession(buffered.ID)
	if gotBuffered.State != SessionExpired {
		t.Errorf("buffered State = %q, want %q", gotBuffered.State, SessionExpired)
	}
}

func TestMissedMessages_ReturnsCopies(t *testing.T) {
	m := NewManager(testConfig())

	s := m.StartSession("alice", "conn-1")
	msg := model.NewUnicast("conn-1", []byte("x"))
	m.BufferMessage("conn-1", msg)
	m.AttemptReconnect(s.ID, "conn-2")

	got := m.MissedMessages(s.ID)
	got[0].Targets[0] = "tampered"

	again := m.MissedMessages(s.ID)
	if again[0].Targets[0] != "conn-1" {
		t.Errorf("targets after caller mutation = %v, want [conn-1]", again[0].Targets)
	}

	if m.MissedMessages("no-such-session") != nil {
		t.Error("MissedMessages(unknown) != nil")
	}
}

func TestParseSessionState(t *testing.T) {
	tests := []struct {
		in      string
		want    SessionState
		wantErr bool
	}{
		{"pending", SessionPending, false},
		{"reconnected", SessionReconnected, false},
		{"failed", SessionFailed, false},
		{"expired", SessionExpired, false},
		{"zombie", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSessionState(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSessionState(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSessionState(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
