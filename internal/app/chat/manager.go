/*
Package chat contains the client-side state of the chat session.

This file defines the Manager struct, the coordinator of one signed-in session. It connects
the real-time transport with the session token, routes every inbound event to the stores,
owns the active selection and resynchronizes the stores after the connection recovers.
*/
package chat

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chatsync/internal/app/model"
	"chatsync/internal/app/notify"
	"chatsync/internal/app/transport"
	"chatsync/internal/app/user"
	"chatsync/internal/pkg/errs"
	"chatsync/internal/pkg/eventbus"
	"chatsync/internal/pkg/logx"
)

// API is everything the Manager and its stores need from the backend.
type API interface {
	MessageAPI
	ConversationAPI
	Chat(ctx context.Context, id string) (model.Conversation, error)
	Users(ctx context.Context) ([]user.User, error)
	User(ctx context.Context, id string) (user.User, error)
}

// MinSearchLength is the shortest term SearchUsers matches on.
const MinSearchLength = 2

// Transport is the real-time connection. *transport.Connector satisfies it.
type Transport interface {
	Publisher
	Connect(token string)
	Disconnect()
	Status() transport.Status
	SubscribeEvents(fn func(transport.Event)) *eventbus.Subscription
	SubscribeStatus(fn func(transport.Status)) *eventbus.Subscription
}

// Identity is the signed-in user. *session.Session satisfies it.
type Identity interface {
	Authenticated() bool
	Token() string
	UserID() string
}

// ChangeKind names the part of the state that changed.
type ChangeKind string

const (
	ChangeConversations ChangeKind = "conversations"
	ChangeMessages      ChangeKind = "messages"
	ChangeDelivered     ChangeKind = "delivered"
	ChangeTyping        ChangeKind = "typing"
	ChangeUsers         ChangeKind = "users"
	ChangeStatus        ChangeKind = "status"
	ChangeSelection     ChangeKind = "selection"
)

// Change tells front ends what to redraw.
type Change struct {
	Kind   ChangeKind
	ChatID string

	// Message is set for ChangeDelivered.
	Message *model.Message

	// Status is set for ChangeStatus.
	Status transport.Status
}

// Deps are the collaborators of a Manager.
type Deps struct {
	API       API
	Transport Transport
	Session   Identity
	Notifier  notify.Notifier

	// TypingInterval and TypingIdle tune the typing tracker; zero selects the defaults.
	TypingInterval time.Duration
	TypingIdle     time.Duration
}

// Manager coordinates the stores of one session.
type Manager struct {
	api       API
	transport Transport
	session   Identity
	notifier  notify.Notifier

	// Messages holds the active conversation's message list.
	Messages *MessageStore

	// Conversations holds the conversation list and unread counters.
	Conversations *ConversationStore

	// Typing holds the typing flags of the active conversation.
	Typing *TypingTracker

	changes *eventbus.Bus[Change]

	// mu protects every field below.
	mu      sync.RWMutex
	users   []user.User
	status  transport.Status
	offline bool
	subs    []*eventbus.Subscription
	cancel  context.CancelFunc
	bgCtx   context.Context

	// wg tracks background resyncs so Stop can wait for them.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// NewManager constructs a stopped Manager.
func NewManager(deps Deps) *Manager {
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogNotifier()
	}

	m := &Manager{
		api:           deps.API,
		transport:     deps.Transport,
		session:       deps.Session,
		notifier:      deps.Notifier,
		Messages:      NewMessageStore(deps.API, deps.Notifier),
		Conversations: NewConversationStore(deps.API, deps.Notifier),
		Typing:        NewTypingTracker(deps.Transport, deps.TypingInterval, deps.TypingIdle),
		changes:       eventbus.New[Change]("chat.changes"),
		status:        transport.StatusDisconnected,
		logger:        logx.Component("manager"),
	}

	m.Messages.observe = func(chatID string) {
		m.emit(Change{Kind: ChangeMessages, ChatID: chatID})
	}

	return m
}

// Subscribe registers fn for every state change.
func (m *Manager) Subscribe(fn func(Change)) *eventbus.Subscription {
	return m.changes.Subscribe(fn)
}

// Start connects the transport and loads conversations and the user directory
// concurrently. It requires an authenticated session.
func (m *Manager) Start(ctx context.Context) error {
	if !m.session.Authenticated() {
		return errs.NewError(errs.ErrUnauthorized)
	}

	selfID := m.session.UserID()
	m.Typing.SetSelf(selfID)

	bgCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	for _, sub := range m.subs {
		sub.Unsubscribe()
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.bgCtx, m.cancel = bgCtx, cancel
	m.offline = false
	m.subs = []*eventbus.Subscription{
		m.transport.SubscribeEvents(m.onEvent),
		m.transport.SubscribeStatus(m.onStatus),
	}
	m.mu.Unlock()

	m.transport.Connect(m.session.Token())
	m.logger.Info().Str("user_id", selfID).Msg("Manager started")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := m.Conversations.Load(gCtx); err != nil {
			return err
		}
		m.emit(Change{Kind: ChangeConversations})
		return nil
	})

	g.Go(func() error {
		return m.loadUsers(gCtx)
	})

	return g.Wait()
}

// Stop unsubscribes from the transport, closes any outstanding typing state and
// disconnects.
func (m *Manager) Stop() {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}

	m.Typing.Stop()
	m.transport.Disconnect()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.logger.Info().Msg("Manager stopped")
}

// Status returns the last observed connection status.
func (m *Manager) Status() transport.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Users returns the user directory.
func (m *Manager) Users() []user.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.users)
}

// FindUser looks a user up in the directory and in the conversation participants,
// then asks the backend. A fetched user other than the local one joins the directory.
func (m *Manager) FindUser(ctx context.Context, id string) (user.User, bool) {
	if u, ok := m.lookupUser(id); ok {
		return u, true
	}

	u, err := m.api.User(ctx, id)
	if err != nil {
		m.logger.Debug().Err(err).Str("user_id", id).Msg("User lookup failed")
		return user.User{}, false
	}

	if u.ID != m.session.UserID() {
		m.mu.Lock()
		if !slices.ContainsFunc(m.users, func(d user.User) bool { return d.ID == u.ID }) {
			m.users = append(m.users, u)
		}
		m.mu.Unlock()
		m.emit(Change{Kind: ChangeUsers})
	}
	return u, true
}

func (m *Manager) lookupUser(id string) (user.User, bool) {
	m.mu.RLock()
	i := slices.IndexFunc(m.users, func(u user.User) bool { return u.ID == id })
	if i >= 0 {
		u := m.users[i]
		m.mu.RUnlock()
		return u, true
	}
	m.mu.RUnlock()

	for _, c := range m.Conversations.Conversations() {
		if p, ok := c.Participant(id); ok {
			return p, true
		}
	}
	return user.User{}, false
}

// SearchUsers returns the directory users other than the local one whose username or
// email contains term, ignoring case. Terms shorter than MinSearchLength match nobody.
func (m *Manager) SearchUsers(term string) []user.User {
	term = strings.ToLower(strings.TrimSpace(term))
	if len([]rune(term)) < MinSearchLength {
		return nil
	}

	selfID := m.session.UserID()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []user.User
	for _, u := range m.users {
		if u.ID == selfID {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), term) || strings.Contains(strings.ToLower(u.Email), term) {
			found = append(found, u)
		}
	}
	return found
}

func (m *Manager) loadUsers(ctx context.Context) error {
	users, err := m.api.Users(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Error loading users")
		return err
	}

	m.mu.Lock()
	m.users = users
	m.mu.Unlock()

	m.emit(Change{Kind: ChangeUsers})
	return nil
}

// Select makes id the active conversation: its counter drops to 0, the typing map
// and message list are reset and its messages are loaded.
func (m *Manager) Select(ctx context.Context, id string) error {
	if _, ok := m.Conversations.Get(id); !ok {
		return errs.NewError(errs.ErrConversationNotFound)
	}

	m.activate(id)
	return m.loadActive(ctx, id)
}

func (m *Manager) activate(id string) {
	m.Conversations.SetActive(id)
	m.Typing.Reset(id)
	m.Messages.Reset(id)
	m.emit(Change{Kind: ChangeSelection, ChatID: id})
}

func (m *Manager) loadActive(ctx context.Context, id string) error {
	return m.Messages.Load(ctx, id)
}

// Send posts text to the active conversation.
func (m *Manager) Send(ctx context.Context, text string) (model.Message, error) {
	chatID := m.Conversations.ActiveID()
	if chatID == "" {
		return model.Message{}, errs.NewError(errs.ErrNoActiveConversation)
	}

	sent, err := m.Messages.Send(ctx, chatID, m.session.UserID(), text)
	if err != nil {
		return model.Message{}, err
	}

	m.Conversations.RecordSent(chatID, sent)
	_ = m.Typing.SetLocalTyping(false)

	m.emit(Change{Kind: ChangeConversations, ChatID: chatID})
	return sent, nil
}

// CreateDirect opens a direct conversation with userID and selects it.
func (m *Manager) CreateDirect(ctx context.Context, userID string) (model.Conversation, error) {
	conv, err := m.Conversations.CreateDirect(ctx, userID)
	if err != nil {
		return model.Conversation{}, err
	}

	m.emit(Change{Kind: ChangeConversations, ChatID: conv.ID})
	m.activate(conv.ID)
	return conv, m.loadActive(ctx, conv.ID)
}

// CreateGroup creates a group conversation and selects it.
func (m *Manager) CreateGroup(ctx context.Context, name string, memberIDs []string) (model.Conversation, error) {
	conv, err := m.Conversations.CreateGroup(ctx, name, memberIDs)
	if err != nil {
		return model.Conversation{}, err
	}

	m.emit(Change{Kind: ChangeConversations, ChatID: conv.ID})
	m.activate(conv.ID)
	return conv, m.loadActive(ctx, conv.ID)
}

// SetTyping reports the local input state for the active conversation.
func (m *Manager) SetTyping(isTyping bool) error {
	return m.Typing.SetLocalTyping(isTyping)
}

// onEvent routes one inbound event. It runs on the transport's read goroutine.
func (m *Manager) onEvent(ev transport.Event) {
	switch e := ev.(type) {
	case transport.MessageDelivered:
		m.onMessage(e.Message)

	case transport.TypingChanged:
		if m.Typing.OnTypingChanged(e.ChatID, e.UserID, e.IsTyping) {
			m.emit(Change{Kind: ChangeTyping, ChatID: e.ChatID})
		}

	case transport.PresenceChanged:
		m.Conversations.ApplyPresence(e.UserID, e.IsOnline)
		m.applyDirectoryPresence(e.UserID, e.IsOnline)
		m.emit(Change{Kind: ChangeConversations})

	case transport.ParticipantJoined:
		if !m.Conversations.ApplyParticipantJoined(e.ChatID, e.User) {
			m.fetchConversation(e.ChatID)
			return
		}
		m.emit(Change{Kind: ChangeConversations, ChatID: e.ChatID})

	case transport.ParticipantLeft:
		m.Typing.RemoveUser(e.ChatID, e.UserID)
		if e.UserID == m.session.UserID() {
			m.leave(e.ChatID)
			return
		}
		m.Conversations.ApplyParticipantLeft(e.ChatID, e.UserID)
		m.emit(Change{Kind: ChangeConversations, ChatID: e.ChatID})

	default:
		m.logger.Warn().Str("event_kind", string(ev.Kind())).Msg("Unhandled event")
	}
}

func (m *Manager) onMessage(msg model.Message) {
	activeID := m.Conversations.ActiveID()

	if msg.ChatID == activeID {
		m.Messages.OnMessageDelivered(msg)
	}

	delivered := msg
	m.emit(Change{Kind: ChangeDelivered, ChatID: msg.ChatID, Message: &delivered})

	if !m.Conversations.ApplyLatestMessage(msg.ChatID, msg) {
		m.logger.Info().Str("chat_id", msg.ChatID).Msg("Message for unknown conversation. Fetching it.")
		m.fetchConversation(msg.ChatID)
		return
	}
	m.emit(Change{Kind: ChangeConversations, ChatID: msg.ChatID})

	if msg.ChatID == activeID {
		return
	}

	conv, _ := m.Conversations.Get(msg.ChatID)
	title := conv.Name
	if !conv.IsGroup {
		title = "New message"
		if sender, ok := conv.Participant(msg.SenderID); ok && sender.Username != "" {
			title = sender.Username
		}
	}
	m.notifier.Notify(notify.Info(title, msg.Content))
}

func (m *Manager) leave(chatID string) {
	wasActive := m.Conversations.ActiveID() == chatID
	m.Conversations.Remove(chatID)

	if wasActive {
		m.Typing.Reset("")
		m.Messages.Reset("")
		m.emit(Change{Kind: ChangeSelection})
	}
	m.emit(Change{Kind: ChangeConversations, ChatID: chatID})
}

func (m *Manager) applyDirectoryPresence(userID string, online bool) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.users {
		if m.users[i].ID == userID {
			m.users[i] = m.users[i].WithPresence(online, now)
		}
	}
}

// onStatus tracks the connection and resynchronizes after a recovery.
func (m *Manager) onStatus(s transport.Status) {
	m.mu.Lock()
	m.status = s
	recovered := false
	switch s {
	case transport.StatusDisconnected:
		m.offline = true
	case transport.StatusConnected:
		recovered = m.offline
		m.offline = false
	}
	m.mu.Unlock()

	m.emit(Change{Kind: ChangeStatus, Status: s})

	if recovered {
		m.logger.Info().Msg("Connection recovered. Resynchronizing.")
		m.background(m.resync)
	}
}

// fetchConversation adds a conversation the list does not hold yet. If it cannot be
// fetched on its own, the whole list is reloaded instead.
func (m *Manager) fetchConversation(chatID string) {
	m.background(func(ctx context.Context) {
		conv, err := m.api.Chat(ctx, chatID)
		if err != nil {
			m.logger.Warn().Err(err).Str("chat_id", chatID).Msg("Error fetching conversation. Reloading list.")
			if err := m.Conversations.Load(ctx); err == nil {
				m.emit(Change{Kind: ChangeConversations})
			}
			return
		}

		m.Conversations.Insert(conv)
		m.emit(Change{Kind: ChangeConversations, ChatID: chatID})
	})
}

// resync reloads the conversation list and the active message list to pick up
// whatever arrived while the connection was down.
func (m *Manager) resync(ctx context.Context) {
	if err := m.Conversations.Load(ctx); err == nil {
		m.emit(Change{Kind: ChangeConversations})
	}

	if id := m.Conversations.ActiveID(); id != "" {
		_ = m.loadActive(ctx, id)
	}
}

// background runs fn off the transport goroutine, bounded by the Manager's lifetime.
func (m *Manager) background(fn func(ctx context.Context)) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Stop clears cancel under mu before waiting, so no Add can follow its Wait.
	if m.cancel == nil {
		return
	}

	ctx := m.bgCtx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(ctx)
	}()
}

func (m *Manager) emit(c Change) {
	m.changes.Publish(c)
}
