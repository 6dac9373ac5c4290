package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatsync/internal/app/notify"
	"chatsync/internal/app/user"
	"chatsync/internal/pkg/auth/jwt"
	"chatsync/internal/pkg/errs"
)

type fakeAPI struct {
	loginCalls int
	meCalls    int
	meToken    string
	tokenOf    func() string

	authUser user.AuthUser
	me       user.User
	err      error
}

func (f *fakeAPI) Login(ctx context.Context, email, password string) (user.AuthUser, error) {
	f.loginCalls++
	return f.authUser, f.err
}

func (f *fakeAPI) Register(ctx context.Context, username, email, password string) (user.AuthUser, error) {
	f.loginCalls++
	return f.authUser, f.err
}

func (f *fakeAPI) Me(ctx context.Context) (user.User, error) {
	f.meCalls++
	if f.tokenOf != nil {
		f.meToken = f.tokenOf()
	}
	return f.me, f.err
}

func TestLoginPersistsToken(t *testing.T) {
	api := &fakeAPI{authUser: user.AuthUser{User: user.User{ID: "u1", Username: "alice"}, Token: "tok"}}
	store := &MemoryTokenStore{}
	rec := &notify.Recorder{}

	s := New(api, store, rec)
	if err := s.Login(context.Background(), " alice@example.com ", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if !s.Authenticated() || s.UserID() != "u1" || s.Token() != "tok" {
		t.Errorf("session = %v %q %q", s.Authenticated(), s.UserID(), s.Token())
	}
	if saved, _ := store.Load(); saved != "tok" {
		t.Errorf("stored token = %q", saved)
	}
	if n, _ := rec.Last(); n.Title != "Login successful" || n.Body != "Welcome back, alice!" {
		t.Errorf("notice = %+v", n)
	}
}

func TestLoginFailureReportsServerMessage(t *testing.T) {
	api := &fakeAPI{err: errs.FromResponse(401, "Invalid credentials")}
	rec := &notify.Recorder{}

	s := New(api, &MemoryTokenStore{}, rec)
	err := s.Login(context.Background(), "alice@example.com", "wrong")
	if !errs.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
	if s.Authenticated() {
		t.Error("authenticated after failed login")
	}
	if n, _ := rec.Last(); n.Level != notify.LevelError || n.Body != "Invalid credentials" {
		t.Errorf("notice = %+v", n)
	}
}

func TestRegisterValidation(t *testing.T) {
	valid := RegisterInput{Username: "bob", Email: "bob@example.com", Password: "secret", ConfirmPassword: "secret"}

	tests := []struct {
		name   string
		modify func(in *RegisterInput)
		code   int
	}{
		{"missing username", func(in *RegisterInput) { in.Username = "  " }, errs.ErrRequiredField},
		{"missing email", func(in *RegisterInput) { in.Email = "" }, errs.ErrRequiredField},
		{"bad email", func(in *RegisterInput) { in.Email = "bob" }, errs.ErrInvalidEmail},
		{"short password", func(in *RegisterInput) { in.Password, in.ConfirmPassword = "abc", "abc" }, errs.ErrPasswordTooShort},
		{"mismatch", func(in *RegisterInput) { in.ConfirmPassword = "secreT" }, errs.ErrPasswordMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			s := New(api, &MemoryTokenStore{}, &notify.Recorder{})

			in := valid
			tt.modify(&in)

			if err := s.Register(context.Background(), in); !errs.Is(err, tt.code) {
				t.Fatalf("err = %v, want code %d", err, tt.code)
			}
			if api.loginCalls != 0 {
				t.Error("API called despite invalid input")
			}
		})
	}
}

func TestRestore(t *testing.T) {
	valid, err := jwt.GenerateToken("u1", "k", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := jwt.GenerateToken("u1", "k", -time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		cached     string
		apiErr     error
		want       bool
		wantMe     int
		wantCached string
	}{
		{"no token", "", nil, false, 0, ""},
		{"valid token", valid, nil, true, 1, valid},
		{"expired token skips network", expired, nil, false, 0, ""},
		{"rejected token", valid, errs.FromResponse(401, ""), false, 1, ""},
		{"opaque token is checked remotely", "opaque", nil, true, 1, "opaque"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MemoryTokenStore{}
			_ = store.Save(tt.cached)

			api := &fakeAPI{me: user.User{ID: "u1"}, err: tt.apiErr}
			rec := &notify.Recorder{}
			s := New(api, store, rec)
			api.tokenOf = s.Token

			if got := s.Restore(context.Background()); got != tt.want {
				t.Fatalf("Restore = %v, want %v", got, tt.want)
			}
			if api.meCalls != tt.wantMe {
				t.Errorf("Me calls = %d, want %d", api.meCalls, tt.wantMe)
			}
			if tt.wantMe > 0 && api.meToken != tt.cached {
				t.Errorf("Me saw token %q", api.meToken)
			}
			if cached, _ := store.Load(); cached != tt.wantCached {
				t.Errorf("cached = %q, want %q", cached, tt.wantCached)
			}
			if len(rec.Notices()) != 0 {
				t.Errorf("Restore produced notices %+v", rec.Notices())
			}
		})
	}
}

func TestLogout(t *testing.T) {
	api := &fakeAPI{authUser: user.AuthUser{User: user.User{ID: "u1"}, Token: "tok"}}
	store := &MemoryTokenStore{}

	s := New(api, store, &notify.Recorder{})
	if err := s.Login(context.Background(), "a@example.com", "secret"); err != nil {
		t.Fatal(err)
	}

	s.Logout()

	if s.Authenticated() || s.Token() != "" {
		t.Error("still authenticated after Logout")
	}
	if cached, _ := store.Load(); cached != "" {
		t.Errorf("cached = %q", cached)
	}
}

func TestFileTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatsync", TokenFileName)
	store := NewFileTokenStore(path)

	if tok, err := store.Load(); err != nil || tok != "" {
		t.Fatalf("Load on missing file = %q, %v", tok, err)
	}

	if err := store.Save("tok"); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}

	if tok, _ := store.Load(); tok != "tok" {
		t.Errorf("Load = %q", tok)
	}

	if err := store.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
	if tok, _ := store.Load(); tok != "" {
		t.Errorf("Load after Clear = %q", tok)
	}
}

func TestFileTokenStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), TokenFileName)
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileTokenStore(path).Load(); !errs.Is(err, errs.ErrTokenStorage) {
		t.Fatalf("err = %v, want ErrTokenStorage", err)
	}
}
