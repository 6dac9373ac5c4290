package chattest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"chatsync/internal/app/model"
	"chatsync/internal/app/user"
	"chatsync/internal/pkg/auth/jwt"
)

// AddUser creates an account and returns its user.
func (s *Server) AddUser(username, email, password string) user.User {
	u, err := s.addAccount(username, email, password)
	if err != nil {
		panic(err)
	}
	return u
}

func (s *Server) addAccount(username, email, password string) (user.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return user.User{}, err
	}

	key := strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[key]; taken {
		return user.User{}, fmt.Errorf("email %s is already registered", email)
	}

	u := user.User{
		ID:       uuid.NewString(),
		Username: username,
		Email:    email,
	}
	s.accounts[u.ID] = &account{user: u, hash: hash}
	s.byEmail[key] = u.ID
	return u, nil
}

// Token issues a valid session token for userID.
func (s *Server) Token(userID string) string {
	token, err := jwt.GenerateToken(userID, s.Secret, jwt.SessionExpiration)
	if err != nil {
		panic(err)
	}
	return token
}

// AddChat creates a conversation between memberIDs.
func (s *Server) AddChat(name string, isGroup bool, memberIDs ...string) model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.addChatLocked(name, isGroup, memberIDs)
	return s.conversationLocked(c, "")
}

func (s *Server) addChatLocked(name string, isGroup bool, memberIDs []string) *chatRecord {
	c := &chatRecord{
		id:           uuid.NewString(),
		name:         name,
		isGroup:      isGroup,
		participants: append([]string(nil), memberIDs...),
		createdAt:    time.Now(),
	}
	s.chats[c.id] = c
	s.order = append([]string{c.id}, s.order...)
	return c
}

// Messages returns the stored messages of chatID.
func (s *Server) Messages(chatID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.messages[chatID]...)
}

// FailSends makes every message POST answer with status and message until
// called again with status 0.
func (s *Server) FailSends(status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == 0 {
		s.sendFailure = nil
		return
	}
	s.sendFailure = &failure{status: status, message: message}
}

// HoldMessages makes message loads of chatID wait until the returned release is called.
func (s *Server) HoldMessages(chatID string) (release func()) {
	gate := make(chan struct{})

	s.mu.Lock()
	s.messageGates[chatID] = gate
	s.mu.Unlock()

	var released bool
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if released {
			return
		}
		released = true
		delete(s.messageGates, chatID)
		close(gate)
	}
}
