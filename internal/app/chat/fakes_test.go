package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chatsync/internal/app/model"
	"chatsync/internal/app/transport"
	"chatsync/internal/app/user"
	"chatsync/internal/pkg/eventbus"
)

// fakeAPI is a scriptable backend. Gates, when set, block the matching call
// until they are closed.
type fakeAPI struct {
	mu sync.Mutex

	chats     []model.Conversation
	chatsErr  error
	chatsGate  chan struct{}
	chatsCalls int
	chatCalls  int
	chatErr    error

	messages     map[string][]model.Message
	messagesErr  error
	messagesGate chan struct{}

	sendResult model.Message
	sendErr    error
	sendGate   chan struct{}
	sendCalls  int

	created     model.Conversation
	createErr   error
	createCalls int

	users []user.User
}

func (f *fakeAPI) Chats(ctx context.Context) ([]model.Conversation, error) {
	f.mu.Lock()
	f.chatsCalls++
	gate := f.chatsGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]model.Conversation, len(f.chats))
	for i, c := range f.chats {
		out[i] = c.Clone()
	}
	return out, f.chatsErr
}

func (f *fakeAPI) chatsStarted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatsCalls
}

func (f *fakeAPI) Chat(ctx context.Context, id string) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++

	if f.chatErr != nil {
		return model.Conversation{}, f.chatErr
	}
	for _, c := range f.chats {
		if c.ID == id {
			return c.Clone(), nil
		}
	}
	return model.Conversation{}, errors.New("chat not found")
}

func (f *fakeAPI) Messages(ctx context.Context, chatID string) ([]model.Message, error) {
	f.mu.Lock()
	gate := f.messagesGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.messages[chatID]...), f.messagesErr
}

func (f *fakeAPI) SendMessage(ctx context.Context, chatID, content string) (model.Message, error) {
	f.mu.Lock()
	f.sendCalls++
	gate := f.sendGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendResult, f.sendErr
}

func (f *fakeAPI) CreateChat(ctx context.Context, participantIDs []string) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	return f.created, f.createErr
}

func (f *fakeAPI) CreateGroupChat(ctx context.Context, name string, participantIDs []string) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	return f.created, f.createErr
}

func (f *fakeAPI) Users(ctx context.Context) ([]user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]user.User(nil), f.users...), nil
}

func (f *fakeAPI) User(ctx context.Context, id string) (user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return user.User{}, errors.New("user not found")
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []transport.TypingChanged
	err    error
}

func (p *fakePublisher) Publish(ev transport.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := ev.(transport.TypingChanged); ok {
		p.events = append(p.events, t)
	}
	return p.err
}

func (p *fakePublisher) sent() []transport.TypingChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]transport.TypingChanged(nil), p.events...)
}

// fakeTransport delivers pushed events synchronously, like the read loop of a
// real connection.
type fakeTransport struct {
	fakePublisher

	events   *eventbus.Bus[transport.Event]
	statuses *eventbus.Bus[transport.Status]
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events:   eventbus.New[transport.Event]("test.events"),
		statuses: eventbus.New[transport.Status]("test.statuses"),
	}
}

func (f *fakeTransport) Connect(token string) { f.statuses.Publish(transport.StatusConnected) }
func (f *fakeTransport) Disconnect()          {}
func (f *fakeTransport) Status() transport.Status {
	return transport.StatusConnected
}

func (f *fakeTransport) SubscribeEvents(fn func(transport.Event)) *eventbus.Subscription {
	return f.events.Subscribe(fn)
}

func (f *fakeTransport) SubscribeStatus(fn func(transport.Status)) *eventbus.Subscription {
	return f.statuses.Subscribe(fn)
}

type staticIdentity struct{ userID string }

func (s staticIdentity) Authenticated() bool { return s.userID != "" }
func (s staticIdentity) Token() string       { return "token-" + s.userID }
func (s staticIdentity) UserID() string      { return s.userID }

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func msg(id, chatID, senderID, content string) model.Message {
	return model.Message{
		ID:        id,
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message.ID
	}
	return out
}
