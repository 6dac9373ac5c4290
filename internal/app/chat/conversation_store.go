package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatsync/internal/app/model"
	"chatsync/internal/app/notify"
	"chatsync/internal/app/user"
	"chatsync/internal/pkg/errs"
	"chatsync/internal/pkg/logx"
)

// ConversationAPI is the part of the backend the ConversationStore talks to.
type ConversationAPI interface {
	Chats(ctx context.Context) ([]model.Conversation, error)
	CreateChat(ctx context.Context, participantIDs []string) (model.Conversation, error)
	CreateGroupChat(ctx context.Context, name string, participantIDs []string) (model.Conversation, error)
}

// ConversationStore owns the conversation list, the latest message of each
// conversation and the unread counters.
type ConversationStore struct {
	api      ConversationAPI
	notifier notify.Notifier
	now      func() time.Time

	// mu protects convs, activeID and loadSeq. It is never held across an API call.
	mu       sync.RWMutex
	convs    []model.Conversation
	activeID string
	loadSeq  uint64

	logger zerolog.Logger
}

// NewConversationStore creates an empty store.
func NewConversationStore(api ConversationAPI, notifier notify.Notifier) *ConversationStore {
	if notifier == nil {
		notifier = notify.NewLogNotifier()
	}

	return &ConversationStore{
		api:      api,
		notifier: notifier,
		now:      time.Now,
		logger:   logx.Component("conversation_store"),
	}
}

// Load replaces the list with the server's. The active conversation's counter is
// forced to 0, and it is kept at the top if the server no longer lists it.
// A result overtaken by a newer Load is discarded.
func (s *ConversationStore) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	fetched, err := s.api.Chats(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.loadSeq {
		s.logger.Debug().Err(err).Msg("Discarding stale conversation load")
		return nil
	}

	if err != nil {
		s.logger.Error().Err(err).Msg("Error loading chats")
		s.notifier.Notify(notify.Failure("Failed to load chats", "Please check your connection and try again"))
		return err
	}

	convs := make([]model.Conversation, 0, len(fetched)+1)
	for _, c := range fetched {
		if c.ID == s.activeID {
			c.UnreadCount = 0
		}
		convs = append(convs, c.Clone())
	}

	if s.activeID != "" && !slices.ContainsFunc(convs, func(c model.Conversation) bool { return c.ID == s.activeID }) {
		if i := s.index(s.activeID); i >= 0 {
			convs = append([]model.Conversation{s.convs[i]}, convs...)
		}
	}

	s.convs = convs
	s.logger.Debug().Int("count", len(convs)).Msg("Conversations loaded")
	return nil
}

// CreateDirect opens a direct conversation with otherUserID and makes it active.
func (s *ConversationStore) CreateDirect(ctx context.Context, otherUserID string) (model.Conversation, error) {
	otherUserID = strings.TrimSpace(otherUserID)
	if otherUserID == "" {
		err := errs.NewError(errs.ErrParticipantRequired)
		s.notifier.Notify(notify.Failure("Validation error", err.Message))
		return model.Conversation{}, err
	}

	conv, err := s.api.CreateChat(ctx, []string{otherUserID})
	if err != nil {
		s.logger.Error().Err(err).Str("peer_id", otherUserID).Msg("Error creating chat")
		s.notifier.Notify(notify.Failure("Failed to create chat", "Please try again later"))
		return model.Conversation{}, err
	}

	s.prependActive(conv)
	s.notifier.Notify(notify.Info("Chat created", "New conversation started"))
	return conv.Clone(), nil
}

// CreateGroup creates a named group with memberIDs and makes it active.
// The name must be non-blank and at least one member is required.
func (s *ConversationStore) CreateGroup(ctx context.Context, name string, memberIDs []string) (model.Conversation, error) {
	name = strings.TrimSpace(name)

	members := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id = strings.TrimSpace(id); id != "" && !slices.Contains(members, id) {
			members = append(members, id)
		}
	}

	var verr *errs.CustomError
	switch {
	case name == "":
		verr = errs.NewError(errs.ErrGroupNameRequired)
	case len(members) == 0:
		verr = errs.NewError(errs.ErrGroupMembersRequired)
	}
	if verr != nil {
		s.notifier.Notify(notify.Failure("Validation error", verr.Message))
		return model.Conversation{}, verr
	}

	conv, err := s.api.CreateGroupChat(ctx, name, members)
	if err != nil {
		s.logger.Error().Err(err).Str("name", name).Msg("Error creating group chat")
		s.notifier.Notify(notify.Failure("Failed to create group", "Please try again later"))
		return model.Conversation{}, err
	}

	s.prependActive(conv)
	s.notifier.Notify(notify.Info("Group created", fmt.Sprintf("Group %q has been created", name)))
	return conv.Clone(), nil
}

func (s *ConversationStore) prependActive(conv model.Conversation) {
	conv = conv.Clone()
	conv.UnreadCount = 0

	s.mu.Lock()
	defer s.mu.Unlock()

	s.convs = slices.DeleteFunc(s.convs, func(c model.Conversation) bool { return c.ID == conv.ID })
	s.convs = append([]model.Conversation{conv}, s.convs...)
	s.activeID = conv.ID
}

// Insert adds a conversation fetched on its own. A conversation already in the list
// is replaced in place; a new one goes to the top. The selection is left alone.
func (s *ConversationStore) Insert(conv model.Conversation) {
	conv = conv.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.ID == s.activeID {
		conv.UnreadCount = 0
	}

	if i := s.index(conv.ID); i >= 0 {
		s.convs[i] = conv
		return
	}
	s.convs = append([]model.Conversation{conv}, s.convs...)
}

// SetActive makes id the active conversation and clears its counter.
// An empty id clears the selection.
func (s *ConversationStore) SetActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeID = id
	if i := s.index(id); i >= 0 {
		s.convs[i].UnreadCount = 0
	}
}

// ActiveID returns the active conversation id, or "".
func (s *ConversationStore) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns the active conversation.
func (s *ConversationStore) Active() (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(s.activeID)
}

// Get returns the conversation with id.
func (s *ConversationStore) Get(id string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

func (s *ConversationStore) get(id string) (model.Conversation, bool) {
	if i := s.index(id); i >= 0 {
		return s.convs[i].Clone(), true
	}
	return model.Conversation{}, false
}

// Conversations returns a copy of the list in display order.
func (s *ConversationStore) Conversations() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Conversation, len(s.convs))
	for i, c := range s.convs {
		out[i] = c.Clone()
	}
	return out
}

// TotalUnread sums the counters of every conversation.
func (s *ConversationStore) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, c := range s.convs {
		total += c.UnreadCount
	}
	return total
}

// DisplayName returns the title of conv as seen by selfID.
func (s *ConversationStore) DisplayName(conv model.Conversation, selfID string) string {
	return conv.DisplayName(selfID)
}

// ApplyLatestMessage records m as the latest message of its conversation and counts
// it as unread unless the conversation is active. A message already recorded as the
// latest is not counted twice. It reports whether the conversation is known.
func (s *ConversationStore) ApplyLatestMessage(chatID string, m model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(chatID)
	if i < 0 {
		return false
	}

	c := &s.convs[i]
	repeat := m.ID != "" && c.LastMessage != nil && c.LastMessage.ID == m.ID

	latest := m
	c.LastMessage = &latest

	switch {
	case chatID == s.activeID:
		c.UnreadCount = 0
	case !repeat:
		c.UnreadCount++
	}

	return true
}

// RecordSent records a message the local user sent as the latest, leaving the counter alone.
func (s *ConversationStore) RecordSent(chatID string, m model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.index(chatID); i >= 0 {
		latest := m
		s.convs[i].LastMessage = &latest
	}
}

// ApplyPresence updates the online flag of userID in every conversation.
func (s *ConversationStore) ApplyPresence(userID string, online bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.convs {
		participants := s.convs[i].Participants
		for j := range participants {
			if participants[j].ID == userID {
				participants[j] = participants[j].WithPresence(online, now)
			}
		}
	}
}

// ApplyParticipantJoined adds u to the conversation, or refreshes it if present.
// It reports whether the conversation is known.
func (s *ConversationStore) ApplyParticipantJoined(chatID string, u user.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(chatID)
	if i < 0 {
		return false
	}

	c := &s.convs[i]
	if j := slices.IndexFunc(c.Participants, func(p user.User) bool { return p.ID == u.ID }); j >= 0 {
		c.Participants[j] = u
	} else {
		c.Participants = append(c.Participants, u)
	}
	return true
}

// ApplyParticipantLeft removes userID from the conversation.
func (s *ConversationStore) ApplyParticipantLeft(chatID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.index(chatID); i >= 0 {
		s.convs[i].Participants = slices.DeleteFunc(s.convs[i].Participants, func(p user.User) bool {
			return p.ID == userID
		})
	}
}

// Remove drops the conversation, clearing the selection if it was active.
func (s *ConversationStore) Remove(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.convs = slices.DeleteFunc(s.convs, func(c model.Conversation) bool { return c.ID == chatID })
	if s.activeID == chatID {
		s.activeID = ""
	}
}

func (s *ConversationStore) index(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.convs, func(c model.Conversation) bool { return c.ID == id })
}
