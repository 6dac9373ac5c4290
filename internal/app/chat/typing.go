package chat

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatsync/internal/app/transport"
	"chatsync/internal/pkg/limiter"
	"chatsync/internal/pkg/logx"
)

const (
	// DefaultTypingInterval is the minimum spacing of repeated typing-started events.
	DefaultTypingInterval = time.Second

	// DefaultTypingIdle is how long input may pause before typing-stopped is sent.
	DefaultTypingIdle = 3 * time.Second
)

// Publisher sends events on the real-time connection.
type Publisher interface {
	Publish(ev transport.Event) error
}

// TypingTracker holds who is typing in the active conversation and publishes the
// local user's own typing state.
type TypingTracker struct {
	pub      Publisher
	throttle *limiter.Throttle
	idle     time.Duration
	now      func() time.Time

	// mu protects every field below.
	mu     sync.Mutex
	chatID string
	selfID string
	typing map[string]bool

	// started is set once typing-started went out and typing-stopped has not.
	started bool

	idleTimer *time.Timer

	// timerGen invalidates idle timers that fired after being replaced.
	timerGen uint64

	logger zerolog.Logger
}

// NewTypingTracker creates a tracker. Non-positive durations select the defaults.
func NewTypingTracker(pub Publisher, interval, idle time.Duration) *TypingTracker {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	if idle <= 0 {
		idle = DefaultTypingIdle
	}

	return &TypingTracker{
		pub:      pub,
		throttle: limiter.NewThrottle(interval),
		idle:     idle,
		now:      time.Now,
		typing:   make(map[string]bool),
		logger:   logx.Component("typing"),
	}
}

// SetSelf sets the local user, whose own typing events are ignored.
func (t *TypingTracker) SetSelf(userID string) {
	t.mu.Lock()
	t.selfID = userID
	t.mu.Unlock()
}

// Reset switches the tracker to chatID: the typing map is cleared and the idle
// timer cancelled. A typing-started still outstanding for the previous conversation
// is closed with typing-stopped. Limiters of conversations quiet for a full interval
// are dropped.
func (t *TypingTracker) Reset(chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.chatID != chatID {
		t.stopLocked()
		t.throttle.Prune(t.now())
	}

	t.chatID = chatID
	t.typing = make(map[string]bool)
}

// SetLocalTyping reports the local user's input state for the active conversation.
// The first start is published at once, repeats at most once per interval. A stop is
// published when input is cleared, or by itself after the idle timeout.
func (t *TypingTracker) SetLocalTyping(isTyping bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.chatID == "" || t.selfID == "" {
		return nil
	}

	if !isTyping {
		return t.stopLocked()
	}

	t.armIdleLocked()

	allowed := t.throttle.AllowAt(t.chatID, t.now())
	if t.started && !allowed {
		return nil
	}

	t.started = true
	return t.publishLocked(true)
}

// Stop cancels the idle timer and publishes typing-stopped if needed.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.throttle.Forget(t.chatID)
}

func (t *TypingTracker) stopLocked() error {
	t.disarmIdleLocked()

	if !t.started {
		return nil
	}
	t.started = false
	return t.publishLocked(false)
}

func (t *TypingTracker) publishLocked(isTyping bool) error {
	err := t.pub.Publish(transport.TypingChanged{
		ChatID:   t.chatID,
		UserID:   t.selfID,
		IsTyping: isTyping,
	})
	if err != nil {
		t.logger.Debug().Err(err).Bool("is_typing", isTyping).Msg("Typing event not sent")
	}
	return err
}

func (t *TypingTracker) armIdleLocked() {
	t.disarmIdleLocked()

	gen := t.timerGen
	t.idleTimer = time.AfterFunc(t.idle, func() { t.onIdle(gen) })
}

func (t *TypingTracker) disarmIdleLocked() {
	t.timerGen++
	if t.idleTimer != nil {
		t.idleTimer.Stop()
		t.idleTimer = nil
	}
}

func (t *TypingTracker) onIdle(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.timerGen {
		return
	}
	t.idleTimer = nil

	if t.started {
		t.started = false
		_ = t.publishLocked(false)
	}
}

// OnTypingChanged records a remote user's typing state. Events for another
// conversation, or from the local user, are ignored.
func (t *TypingTracker) OnTypingChanged(chatID, userID string, isTyping bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if chatID == "" || chatID != t.chatID || userID == t.selfID {
		return false
	}

	t.typing[userID] = isTyping
	return true
}

// RemoveUser drops the flag of a user who left chatID.
func (t *TypingTracker) RemoveUser(chatID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if chatID == t.chatID {
		delete(t.typing, userID)
	}
}

// Snapshot returns a copy of the typing map.
func (t *TypingTracker) Snapshot() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]bool, len(t.typing))
	for id, v := range t.typing {
		out[id] = v
	}
	return out
}

// TypingUsers returns the sorted ids of users currently typing.
func (t *TypingTracker) TypingUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []string
	for id, v := range t.typing {
		if v {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
