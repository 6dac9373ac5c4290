package chat

import (
	"slices"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTracker(idle time.Duration) (*TypingTracker, *fakePublisher, *fakeClock) {
	pub := &fakePublisher{}
	clk := &fakeClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}

	tr := NewTypingTracker(pub, time.Second, idle)
	tr.now = clk.now
	tr.SetSelf("me")
	tr.Reset("X")
	return tr, pub, clk
}

func typingStates(pub *fakePublisher) []bool {
	var out []bool
	for _, ev := range pub.sent() {
		out = append(out, ev.IsTyping)
	}
	return out
}

func TestLocalTypingThrottled(t *testing.T) {
	tr, pub, clk := newTracker(time.Hour)
	defer tr.Stop()

	_ = tr.SetLocalTyping(true)
	clk.advance(300 * time.Millisecond)
	_ = tr.SetLocalTyping(true)
	clk.advance(300 * time.Millisecond)
	_ = tr.SetLocalTyping(true)

	if got := typingStates(pub); !slices.Equal(got, []bool{true}) {
		t.Fatalf("within interval = %v, want [true]", got)
	}

	clk.advance(time.Second)
	_ = tr.SetLocalTyping(true)

	if got := typingStates(pub); !slices.Equal(got, []bool{true, true}) {
		t.Fatalf("after interval = %v, want [true true]", got)
	}

	ev := pub.sent()[0]
	if ev.ChatID != "X" || ev.UserID != "me" {
		t.Errorf("event = %+v", ev)
	}
}

func TestStopOnlyAfterStart(t *testing.T) {
	tr, pub, _ := newTracker(time.Hour)

	_ = tr.SetLocalTyping(false)
	if n := len(pub.sent()); n != 0 {
		t.Fatalf("stop without start published %d events", n)
	}

	_ = tr.SetLocalTyping(true)
	_ = tr.SetLocalTyping(false)
	_ = tr.SetLocalTyping(false)

	if got := typingStates(pub); !slices.Equal(got, []bool{true, false}) {
		t.Errorf("events = %v, want [true false]", got)
	}
}

func TestRestartAfterStopIsImmediate(t *testing.T) {
	tr, pub, _ := newTracker(time.Hour)
	defer tr.Stop()

	_ = tr.SetLocalTyping(true)
	_ = tr.SetLocalTyping(false)
	_ = tr.SetLocalTyping(true)

	if got := typingStates(pub); !slices.Equal(got, []bool{true, false, true}) {
		t.Errorf("events = %v, want [true false true]", got)
	}
}

func TestIdleTimeoutPublishesStop(t *testing.T) {
	tr, pub, _ := newTracker(20 * time.Millisecond)

	_ = tr.SetLocalTyping(true)

	eventually(t, "idle stop", func() bool { return len(pub.sent()) == 2 })
	if got := typingStates(pub); !slices.Equal(got, []bool{true, false}) {
		t.Fatalf("events = %v, want [true false]", got)
	}

	_ = tr.SetLocalTyping(false)
	time.Sleep(40 * time.Millisecond)
	if n := len(pub.sent()); n != 2 {
		t.Errorf("extra events after idle stop: %d", n)
	}
}

func TestNoEventsWithoutConversation(t *testing.T) {
	pub := &fakePublisher{}
	tr := NewTypingTracker(pub, time.Second, time.Hour)
	tr.SetSelf("me")

	_ = tr.SetLocalTyping(true)
	if n := len(pub.sent()); n != 0 {
		t.Errorf("published %d events with no conversation", n)
	}
}

func TestResetStopsPreviousConversation(t *testing.T) {
	tr, pub, _ := newTracker(time.Hour)
	tr.OnTypingChanged("X", "bob", true)

	_ = tr.SetLocalTyping(true)
	tr.Reset("Y")

	evs := pub.sent()
	if len(evs) != 2 || evs[1].IsTyping || evs[1].ChatID != "X" {
		t.Fatalf("events = %+v", evs)
	}
	if len(tr.Snapshot()) != 0 {
		t.Errorf("typing map not cleared: %v", tr.Snapshot())
	}

	_ = tr.SetLocalTyping(true)
	if evs = pub.sent(); len(evs) != 3 || evs[2].ChatID != "Y" || !evs[2].IsTyping {
		t.Errorf("events = %+v", evs)
	}
	tr.Stop()
}

func TestRemoteTyping(t *testing.T) {
	tr, _, _ := newTracker(time.Hour)

	tests := []struct {
		name    string
		chatID  string
		userID  string
		typing  bool
		applied bool
	}{
		{"peer starts", "X", "bob", true, true},
		{"second peer", "X", "eve", true, true},
		{"own echo", "X", "me", true, false},
		{"other conversation", "Y", "zed", true, false},
		{"peer stops", "X", "eve", false, true},
	}

	for _, tt := range tests {
		if got := tr.OnTypingChanged(tt.chatID, tt.userID, tt.typing); got != tt.applied {
			t.Errorf("%s: applied = %v, want %v", tt.name, got, tt.applied)
		}
	}

	if got := tr.TypingUsers(); !slices.Equal(got, []string{"bob"}) {
		t.Errorf("TypingUsers = %v, want [bob]", got)
	}

	tr.RemoveUser("X", "bob")
	if got := tr.TypingUsers(); len(got) != 0 {
		t.Errorf("TypingUsers after leave = %v", got)
	}
}

func TestResetPrunesQuietLimiters(t *testing.T) {
	tr, _, clk := newTracker(time.Hour)
	defer tr.Stop()

	_ = tr.SetLocalTyping(true)
	tr.Reset("Y")
	_ = tr.SetLocalTyping(true)

	if n := tr.throttle.Len(); n != 2 {
		t.Fatalf("limiters after quick switch = %d, want 2", n)
	}

	clk.advance(2 * time.Second)
	tr.Reset("Z")

	if n := tr.throttle.Len(); n != 0 {
		t.Errorf("limiters after quiet switch = %d, want 0", n)
	}
}
