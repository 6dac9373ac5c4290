/*
Package chat contains the client-side state of the chat session: the message list of the
active conversation, the conversation list with its unread counters, the typing flags of
the active conversation, and the Manager that feeds all three from the REST API and the
real-time connection.

This file defines the MessageStore, which owns the ordered message list of the active
conversation and reconciles optimistic sends with server-confirmed messages.
*/
package chat

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatsync/internal/app/model"
	"chatsync/internal/app/notify"
	"chatsync/internal/pkg/errs"
	"chatsync/internal/pkg/logx"
	"chatsync/internal/pkg/randx"
)

// Phase is the lifecycle stage of an Entry.
type Phase int

const (
	// PhasePending marks an optimistic local send awaiting confirmation.
	PhasePending Phase = iota + 1

	// PhaseConfirmed marks a message the server has stored.
	PhaseConfirmed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Entry is one row of the message list.
type Entry struct {
	Phase Phase

	// LocalID is set for entries that started as a local send, and kept after confirmation.
	LocalID randx.LocalID

	// Message is the draft while pending, the server copy once confirmed.
	Message model.Message
}

// Pending reports whether the entry still awaits confirmation.
func (e Entry) Pending() bool { return e.Phase == PhasePending }

// MessageAPI is the part of the backend the MessageStore talks to.
type MessageAPI interface {
	Messages(ctx context.Context, chatID string) ([]model.Message, error)
	SendMessage(ctx context.Context, chatID, content string) (model.Message, error)
}

// MessageStore holds the message list of the active conversation.
type MessageStore struct {
	api      MessageAPI
	notifier notify.Notifier
	now      func() time.Time

	// mu protects every field below. It is never held across an API call.
	mu sync.RWMutex

	chatID  string
	entries []Entry

	// epoch changes on every Reset; results tagged with an older epoch are dropped.
	epoch uint64

	// loadSeq identifies the latest Load; older loads of the same epoch are dropped.
	loadSeq uint64
	loading bool

	// observe, if set, is called after every change to the list, without mu held.
	observe func(chatID string)

	logger zerolog.Logger
}

// NewMessageStore creates an empty store with no active conversation.
func NewMessageStore(api MessageAPI, notifier notify.Notifier) *MessageStore {
	if notifier == nil {
		notifier = notify.NewLogNotifier()
	}

	return &MessageStore{
		api:      api,
		notifier: notifier,
		now:      time.Now,
		logger:   logx.Component("message_store"),
	}
}

// Reset discards the list and makes chatID the store's conversation. Pending loads
// and sends started before the reset no longer touch the list.
func (s *MessageStore) Reset(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chatID = chatID
	s.entries = nil
	s.epoch++
	s.loading = false
}

// ConversationID returns the conversation the list belongs to.
func (s *MessageStore) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatID
}

// Loading reports whether a Load is in flight.
func (s *MessageStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Entries returns a copy of the list, oldest first.
func (s *MessageStore) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}

// Messages returns the messages of the list, pending drafts included.
func (s *MessageStore) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Message
	}
	return out
}

// Load replaces the list with the server's messages for chatID. A different chatID
// resets the store first. The result is discarded if the selection changed, or a newer
// load started, while the request was in flight. Entries added during the flight
// that the server list does not contain yet are kept after it.
func (s *MessageStore) Load(ctx context.Context, chatID string) error {
	s.mu.Lock()
	if s.chatID != chatID {
		s.chatID = chatID
		s.entries = nil
		s.epoch++
	}
	s.loadSeq++
	epoch, seq := s.epoch, s.loadSeq
	s.loading = true
	s.mu.Unlock()

	fetched, err := s.api.Messages(ctx, chatID)

	s.mu.Lock()
	if s.epoch != epoch || s.loadSeq != seq {
		s.mu.Unlock()
		s.logger.Debug().Str("chat_id", chatID).Msg("Discarding stale message load")
		return nil
	}
	s.loading = false

	if err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("chat_id", chatID).Msg("Error loading messages")
		s.notifier.Notify(notify.Failure("Failed to load messages", "Please check your connection and try again"))
		return err
	}

	s.entries = merge(fetched, s.entries)
	count := len(s.entries)
	s.mu.Unlock()

	s.changed(chatID)

	s.logger.Debug().Str("chat_id", chatID).Int("count", count).Msg("Messages loaded")
	return nil
}

// merge builds the list from the server page followed by the local entries it lacks.
func merge(fetched []model.Message, local []Entry) []Entry {
	merged := make([]Entry, 0, len(fetched)+len(local))
	seen := make(map[string]struct{}, len(fetched))

	for _, m := range fetched {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, Entry{Phase: PhaseConfirmed, Message: m})
	}

	for _, e := range local {
		if e.Pending() {
			merged = append(merged, e)
			continue
		}
		if _, ok := seen[e.Message.ID]; !ok {
			seen[e.Message.ID] = struct{}{}
			merged = append(merged, e)
		}
	}

	return merged
}

// Send appends a pending draft of text, posts it and swaps the draft for the stored
// message in place. On failure the draft is removed and the failure is reported.
// Empty text, a missing sender or a chatID other than the store's is rejected
// before anything changes.
func (s *MessageStore) Send(ctx context.Context, chatID, senderID, text string) (model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return model.Message{}, errs.NewError(errs.ErrEmptyMessage)
	}
	if senderID == "" {
		return model.Message{}, errs.NewError(errs.ErrUnauthorized)
	}

	now := s.now()
	localID := randx.NewLocalID(now)

	s.mu.Lock()
	if chatID == "" || chatID != s.chatID {
		s.mu.Unlock()
		return model.Message{}, errs.NewError(errs.ErrNoActiveConversation)
	}
	s.entries = append(s.entries, Entry{
		Phase:   PhasePending,
		LocalID: localID,
		Message: model.Message{
			ChatID:    chatID,
			SenderID:  senderID,
			Content:   text,
			Timestamp: now,
		},
	})
	epoch := s.epoch
	s.mu.Unlock()

	s.changed(chatID)

	sent, err := s.api.SendMessage(ctx, chatID, text)

	s.mu.Lock()
	current := s.epoch == epoch
	if err != nil {
		if current {
			s.removeLocal(localID)
		}
		s.mu.Unlock()

		if current {
			s.changed(chatID)
		}

		s.logger.Error().Err(err).Str("chat_id", chatID).Str("local_id", localID.String()).Msg("Error sending message")
		s.notifier.Notify(notify.Failure("Failed to send message", "Please check your connection and try again"))
		return model.Message{}, err
	}

	if current {
		s.confirm(localID, sent)
	}
	s.mu.Unlock()

	if current {
		s.changed(chatID)
	}
	return sent, nil
}

// confirm replaces the draft localID with sent and drops any copy of sent that a
// delivery event added meanwhile. Callers hold mu.
func (s *MessageStore) confirm(localID randx.LocalID, sent model.Message) {
	idx := slices.IndexFunc(s.entries, func(e Entry) bool {
		return e.Pending() && e.LocalID == localID
	})

	if idx < 0 {
		if !s.hasConfirmed(sent.ID) {
			s.entries = append(s.entries, Entry{Phase: PhaseConfirmed, LocalID: localID, Message: sent})
		}
		return
	}

	s.entries[idx] = Entry{Phase: PhaseConfirmed, LocalID: localID, Message: sent}

	s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool {
		return e.Phase == PhaseConfirmed && e.Message.ID == sent.ID && e.LocalID != localID
	})
}

func (s *MessageStore) removeLocal(localID randx.LocalID) {
	s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool {
		return e.Pending() && e.LocalID == localID
	})
}

func (s *MessageStore) hasConfirmed(id string) bool {
	return slices.ContainsFunc(s.entries, func(e Entry) bool {
		return e.Phase == PhaseConfirmed && e.Message.ID == id
	})
}

// OnMessageDelivered appends m unless its id is already listed or it belongs to
// another conversation. It reports whether the list changed.
func (s *MessageStore) OnMessageDelivered(m model.Message) bool {
	s.mu.Lock()
	if m.ChatID != s.chatID || s.hasConfirmed(m.ID) {
		s.mu.Unlock()
		return false
	}
	s.entries = append(s.entries, Entry{Phase: PhaseConfirmed, Message: m})
	s.mu.Unlock()

	s.changed(m.ChatID)
	return true
}

func (s *MessageStore) changed(chatID string) {
	if s.observe != nil {
		s.observe(chatID)
	}
}
