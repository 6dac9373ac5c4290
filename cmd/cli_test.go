package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"chatsync/internal/app/api"
	"chatsync/internal/app/chat"
	"chatsync/internal/app/session"
	"chatsync/internal/app/transport"
	"chatsync/internal/chattest"
	"chatsync/internal/configs"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) take() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	b.buf.Reset()
	return s
}

func newTestCLI(t *testing.T) (*cli, *syncBuffer, *chattest.Server) {
	t.Helper()

	srv := chattest.New()
	t.Cleanup(srv.Close)

	alice := srv.AddUser("alice", "alice@example.com", "secret1")
	bob := srv.AddUser("bob", "bob@example.com", "secret2")
	srv.AddUser("eve", "eve@example.com", "secret3")
	srv.AddChat("", false, alice.ID, bob.ID)

	buf := &syncBuffer{}
	out := newPrinter(buf)

	var sess *session.Session
	client := api.New(api.Options{BaseURL: srv.APIURL(), Tokens: func() string { return sess.Token() }})
	sess = session.New(client, &session.MemoryTokenStore{}, out)
	if err := sess.Login(context.Background(), "alice@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}

	mgr := chat.NewManager(chat.Deps{
		API:       client,
		Transport: transport.NewConnector(srv.WSURL(), transport.Options{ReconnectDelay: 50 * time.Millisecond}),
		Session:   sess,
		Notifier:  out,
	})
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mgr.Stop)

	buf.take()
	return newCLI(mgr, sess, out), buf, srv
}

func TestCLICommands(t *testing.T) {
	c, buf, _ := newTestCLI(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"list chats", "/chats", []string{"1. bob"}},
		{"list users", "/users", []string{"bob", "eve"}},
		{"search users", "/users EV", []string{"eve"}},
		{"search too short", "/users e", []string{"Type at least 2 characters to search"}},
		{"search no match", "/users zz", []string{"No users found."}},
		{"send without selection", "hello", []string{"Open a conversation first"}},
		{"open by index", "/open 1", []string{"--- bob ---"}},
		{"open out of range", "/open 9", []string{"No conversation #9"}},
		{"open unknown id", "/open nope", []string{"Conversation not found."}},
		{"usage", "/dm", []string{"usage: /dm"}},
		{"unknown", "/frobnicate", []string{"Unknown command /frobnicate"}},
		{"direct by username", "/dm eve", []string{"Chat created", "--- eve ---"}},
		{"group validation", "/group team ,", []string{"Validation error"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if quit := c.handle(ctx, tt.input); quit {
				t.Fatal("command asked to quit")
			}
			got := buf.take()
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("output %q lacks %q", got, w)
				}
			}
		})
	}
}

func TestCLISendAndQuit(t *testing.T) {
	c, buf, srv := newTestCLI(t)
	ctx := context.Background()

	c.handle(ctx, "/open 1")
	buf.take()

	c.handle(ctx, "hi there")

	chatID := c.mgr.Conversations.ActiveID()
	if msgs := srv.Messages(chatID); len(msgs) != 1 || msgs[0].Content != "hi there" {
		t.Fatalf("server messages = %+v", msgs)
	}

	c.handle(ctx, "/chats")
	if got := buf.take(); !strings.Contains(got, "> ") || !strings.Contains(got, "hi there") {
		t.Errorf("chat list = %q", got)
	}

	if !c.handle(ctx, "/quit") {
		t.Error("/quit did not quit")
	}
}

func TestCLIRunStopsAtEOF(t *testing.T) {
	c, _, _ := newTestCLI(t)

	lines := make(chan string, 2)
	lines <- "/chats"
	close(lines)

	if err := c.run(context.Background(), lines); err != nil {
		t.Errorf("run = %v", err)
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("x", 50)
	if got := preview(long); len([]rune(got)) != 40 {
		t.Errorf("preview length = %d", len([]rune(got)))
	}
	if preview("short") != "short" {
		t.Error("short text changed")
	}
}

func TestCLIChatsShowUnreadTotal(t *testing.T) {
	c, buf, srv := newTestCLI(t)
	ctx := context.Background()

	if !srv.WaitConnected(c.sess.UserID(), 3*time.Second) {
		t.Fatal("client never connected")
	}

	chatID := c.mgr.Conversations.Conversations()[0].ID
	bobID := c.resolveUser("bob")
	for _, text := range []string{"ping", "pong"} {
		if _, err := srv.Post(bobID, chatID, text); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for c.mgr.Conversations.TotalUnread() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("unread total = %d, want 2", c.mgr.Conversations.TotalUnread())
		}
		time.Sleep(5 * time.Millisecond)
	}
	buf.take()

	c.handle(ctx, "/chats")
	if got := buf.take(); !strings.Contains(got, "Conversations (2 unread)") || !strings.Contains(got, "1. bob (2)") {
		t.Errorf("chat list = %q", got)
	}
}

func TestSignIn(t *testing.T) {
	srv := chattest.New()
	t.Cleanup(srv.Close)
	ctx := context.Background()

	newSession := func() *session.Session {
		var sess *session.Session
		client := api.New(api.Options{BaseURL: srv.APIURL(), Tokens: func() string { return sess.Token() }})
		sess = session.New(client, &session.MemoryTokenStore{}, newPrinter(&syncBuffer{}))
		return sess
	}

	cfg := &configs.AppConfig{Username: "carol", Email: "carol@example.com", Password: "secret9"}
	registered := newSession()
	if err := signIn(ctx, registered, cfg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if u, ok := registered.User(); !ok || u.Username != "carol" {
		t.Errorf("registered user = %+v, %v", u, ok)
	}

	cfg.Username = ""
	loggedIn := newSession()
	if err := signIn(ctx, loggedIn, cfg); err != nil {
		t.Fatalf("login: %v", err)
	}
	if loggedIn.UserID() != registered.UserID() {
		t.Errorf("login user = %q, want %q", loggedIn.UserID(), registered.UserID())
	}
}
