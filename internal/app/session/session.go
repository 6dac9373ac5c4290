/*
Package session holds the authenticated identity of the client.

A Session logs in or registers against the backend, persists the resulting bearer token
through a TokenStore, restores it at startup and gates every other component: nothing
connects or loads until Authenticated reports true.
*/
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatsync/internal/app/notify"
	"chatsync/internal/app/user"
	"chatsync/internal/pkg/auth/jwt"
	"chatsync/internal/pkg/errs"
	"chatsync/internal/pkg/logx"
)

// API is the part of the backend the session talks to.
type API interface {
	Login(ctx context.Context, email, password string) (user.AuthUser, error)
	Register(ctx context.Context, username, email, password string) (user.AuthUser, error)
	Me(ctx context.Context) (user.User, error)
}

// Session is the client's authenticated identity. It is safe for concurrent use.
type Session struct {
	api      API
	store    TokenStore
	notifier notify.Notifier
	now      func() time.Time

	// mu protects token and self.
	mu    sync.RWMutex
	token string
	self  *user.User

	logger zerolog.Logger
}

// New creates an unauthenticated Session.
func New(api API, store TokenStore, notifier notify.Notifier) *Session {
	if notifier == nil {
		notifier = notify.NewLogNotifier()
	}

	return &Session{
		api:      api,
		store:    store,
		notifier: notifier,
		now:      time.Now,
		logger:   logx.Component("session"),
	}
}

// Token returns the current bearer token, or "".
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the authenticated user.
func (s *Session) User() (user.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.self == nil {
		return user.User{}, false
	}
	return *s.self, true
}

// UserID returns the id of the authenticated user, or "".
func (s *Session) UserID() string {
	u, _ := s.User()
	return u.ID
}

// Authenticated reports whether a user is signed in.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self != nil
}

// Login validates the credentials, signs in and persists the token.
func (s *Session) Login(ctx context.Context, email, password string) error {
	in := LoginInput{Email: email, Password: password}.normalized()
	if err := checkInput(in); err != nil {
		s.notifier.Notify(notify.Failure("Validation error", errs.Message(err)))
		return err
	}

	au, err := s.api.Login(ctx, in.Email, in.Password)
	if err != nil {
		s.logger.Warn().Err(err).Str("email", in.Email).Msg("Login failed")
		s.notifier.Notify(notify.Failure("Login failed", errs.Message(err)))
		return err
	}

	s.establish(au)
	s.notifier.Notify(notify.Info("Login successful", fmt.Sprintf("Welcome back, %s!", au.Username)))
	return nil
}

// Register validates the form, creates the account and persists the token.
func (s *Session) Register(ctx context.Context, in RegisterInput) error {
	in = in.normalized()
	if err := checkInput(in); err != nil {
		s.notifier.Notify(notify.Failure("Validation error", errs.Message(err)))
		return err
	}

	au, err := s.api.Register(ctx, in.Username, in.Email, in.Password)
	if err != nil {
		s.logger.Warn().Err(err).Str("email", in.Email).Msg("Registration failed")
		s.notifier.Notify(notify.Failure("Registration failed", errs.Message(err)))
		return err
	}

	s.establish(au)
	s.notifier.Notify(notify.Info("Registration successful", fmt.Sprintf("Welcome, %s!", au.Username)))
	return nil
}

// Restore resumes the cached session, if any. A missing, expired or rejected token
// leaves the session unauthenticated without reporting anything to the user.
func (s *Session) Restore(ctx context.Context) bool {
	token, err := s.store.Load()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Could not read cached token")
		return false
	}
	if token == "" {
		return false
	}

	if claims, err := jwt.Inspect(token); err == nil && claims.ExpiredAt(s.now()) {
		s.logger.Info().Time("expired_at", claims.Expiry()).Msg("Cached token expired. Clearing.")
		s.clear()
		return false
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	me, err := s.api.Me(ctx)
	if err != nil {
		s.logger.Info().Err(err).Msg("Cached token rejected. Clearing.")
		s.clear()
		return false
	}

	s.mu.Lock()
	s.self = &me
	s.mu.Unlock()

	s.logger.Info().Str("user_id", me.ID).Msg("Session restored")
	return true
}

// Logout forgets the token and the identity.
func (s *Session) Logout() {
	s.clear()
	s.notifier.Notify(notify.Info("Logged out", "You have been successfully logged out"))
}

func (s *Session) establish(au user.AuthUser) {
	self := au.User

	s.mu.Lock()
	s.token = au.Token
	s.self = &self
	s.mu.Unlock()

	if err := s.store.Save(au.Token); err != nil {
		s.logger.Error().Err(err).Msg("Could not persist token")
	}

	s.logger.Info().Str("user_id", self.ID).Msg("Session established")
}

func (s *Session) clear() {
	s.mu.Lock()
	s.token = ""
	s.self = nil
	s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		s.logger.Error().Err(err).Msg("Could not clear cached token")
	}
}
