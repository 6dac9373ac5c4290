package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"chatsync/internal/pkg/errs"
)

func newTestClient(t *testing.T, token string, h http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return New(Options{
		BaseURL: srv.URL + "/api",
		Tokens:  func() string { return token },
	})
}

func TestSendMessage(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]string

	c := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.Method + " " + r.URL.Path

		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1","chatId":"X","senderId":"u1","content":"hi","timestamp":"2024-01-01T10:00:00Z","isRead":false}`))
	})

	m, err := c.SendMessage(context.Background(), "X", "hi")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "POST /api/chats/X/messages" {
		t.Errorf("request = %q", gotPath)
	}
	if gotBody["content"] != "hi" {
		t.Errorf("body = %v", gotBody)
	}
	if m.ID != "m1" || m.ChatID != "X" {
		t.Errorf("message = %+v", m)
	}
}

func TestAnonymousCallHasNoAuthorization(t *testing.T) {
	var gotAuth string

	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"id":"u1","username":"alice","token":"t"}`))
	})

	au, err := c.Login(context.Background(), "a@example.com", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want none", gotAuth)
	}
	if au.Token != "t" || au.Username != "alice" {
		t.Errorf("auth user = %+v", au)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode int
		wantMsg  string
	}{
		{"server message", http.StatusBadRequest, `{"message":"Chat not found"}`, errs.ErrServerRejected, "Chat not found"},
		{"plain text body", http.StatusInternalServerError, "Database error\n", errs.ErrServerRejected, errs.GenericMessage},
		{"empty json", http.StatusConflict, `{}`, errs.ErrServerRejected, errs.GenericMessage},
		{"unauthorized", http.StatusUnauthorized, `{"message":"Invalid token"}`, errs.ErrUnauthorized, "Invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Chats(context.Background())
			if !errs.Is(err, tt.wantCode) {
				t.Fatalf("err = %v, want code %d", err, tt.wantCode)
			}
			if got := errs.Message(err); got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestInvalidResponse(t *testing.T) {
	c := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	if _, err := c.Users(context.Background()); !errs.Is(err, errs.ErrInvalidResponse) {
		t.Fatalf("err = %v, want ErrInvalidResponse", err)
	}
}

func TestRequestFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Options{BaseURL: url})
	if _, err := c.Me(context.Background()); !errs.Is(err, errs.ErrRequestFailed) {
		t.Fatalf("err = %v, want ErrRequestFailed", err)
	}
}

func TestCancelledContext(t *testing.T) {
	block := make(chan struct{})
	c := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Chats(ctx); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
