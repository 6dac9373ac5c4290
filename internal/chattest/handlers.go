package chattest

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"chatsync/internal/app/model"
	"chatsync/internal/app/transport"
	"chatsync/internal/app/user"
	"chatsync/internal/pkg/auth/jwt"
	"chatsync/internal/pkg/randx"
	"chatsync/internal/pkg/req"
	"chatsync/internal/pkg/resp"
)

type credentials struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type participantsInput struct {
	Name           string   `json:"name,omitempty"`
	ParticipantIDs []string `json:"participantIds"`
}

type contentInput struct {
	Content string `json:"content"`
}

func (s *Server) callerID(r *http.Request) string {
	if p := jwt.GetPayloadFromContext(r); p != nil {
		return p.UserID
	}
	return ""
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := req.BindJSON(w, r, &in); err != nil {
		resp.RespondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[s.byEmail[strings.ToLower(in.Email)]]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(in.Password)) != nil {
		resp.RespondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	s.respondAuth(w, http.StatusOK, acc.user)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := req.BindJSON(w, r, &in); err != nil {
		resp.RespondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	if in.Username == "" || in.Email == "" || in.Password == "" {
		resp.RespondError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	u, err := s.addAccount(in.Username, in.Email, in.Password)
	if err != nil {
		resp.RespondError(w, http.StatusConflict, err.Error())
		return
	}

	s.respondAuth(w, http.StatusCreated, u)
}

func (s *Server) respondAuth(w http.ResponseWriter, status int, u user.User) {
	token, err := jwt.GenerateToken(u.ID, s.Secret, jwt.SessionExpiration)
	if err != nil {
		resp.RespondError(w, http.StatusInternalServerError, "Error generating token")
		return
	}

	resp.RespondJSON(w, status, user.AuthUser{User: u, Token: token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	acc, ok := s.accounts[s.callerID(r)]
	s.mu.Unlock()

	if !ok {
		resp.RespondError(w, http.StatusUnauthorized, "User not found")
		return
	}
	resp.RespondSuccess(w, acc.user)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	caller := s.callerID(r)

	s.mu.Lock()
	users := make([]user.User, 0, len(s.accounts))
	for id, acc := range s.accounts {
		if id != caller {
			users = append(users, acc.user)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(users, func(a, b user.User) int { return strings.Compare(a.Username, b.Username) })
	resp.RespondSuccess(w, users)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	acc, ok := s.accounts[chi.URLParam(r, "id")]
	s.mu.Unlock()

	if !ok {
		resp.RespondError(w, http.StatusNotFound, "User not found")
		return
	}
	resp.RespondSuccess(w, acc.user)
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	caller := s.callerID(r)

	s.mu.Lock()
	convs := make([]model.Conversation, 0, len(s.order))
	for _, id := range s.order {
		if c := s.chats[id]; slices.Contains(c.participants, caller) {
			convs = append(convs, s.conversationLocked(c, caller))
		}
	}
	s.mu.Unlock()

	resp.RespondSuccess(w, convs)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	caller := s.callerID(r)

	s.mu.Lock()
	c, ok := s.chats[chi.URLParam(r, "id")]
	var conv model.Conversation
	if ok && slices.Contains(c.participants, caller) {
		conv = s.conversationLocked(c, caller)
	} else {
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		resp.RespondError(w, http.StatusNotFound, "Chat not found")
		return
	}
	resp.RespondSuccess(w, conv)
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var in participantsInput
	if err := req.BindJSON(w, r, &in); err != nil {
		resp.RespondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if len(in.ParticipantIDs) == 0 {
		resp.RespondError(w, http.StatusBadRequest, "No participants specified")
		return
	}

	s.createChat(w, s.callerID(r), "", false, in.ParticipantIDs)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var in participantsInput
	if err := req.BindJSON(w, r, &in); err != nil {
		resp.RespondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if strings.TrimSpace(in.Name) == "" || len(in.ParticipantIDs) == 0 {
		resp.RespondError(w, http.StatusBadRequest, "Group name and participants are required")
		return
	}

	s.createChat(w, s.callerID(r), in.Name, true, in.ParticipantIDs)
}

func (s *Server) createChat(w http.ResponseWriter, caller, name string, isGroup bool, ids []string) {
	members := []string{caller}
	for _, id := range ids {
		if !slices.Contains(members, id) {
			members = append(members, id)
		}
	}

	s.mu.Lock()
	for _, id := range members {
		if _, ok := s.accounts[id]; !ok {
			s.mu.Unlock()
			resp.RespondError(w, http.StatusBadRequest, "Invalid participant ID: "+id)
			return
		}
	}

	if !isGroup && len(members) == 2 {
		if existing := s.findDirectLocked(members[0], members[1]); existing != nil {
			conv := s.conversationLocked(existing, caller)
			s.mu.Unlock()
			resp.RespondSuccess(w, conv)
			return
		}
	}

	c := s.addChatLocked(name, isGroup, members)
	conv := s.conversationLocked(c, caller)
	joined := make([]transport.Event, 0, len(members))
	for _, id := range members {
		joined = append(joined, transport.ParticipantJoined{ChatID: c.id, User: s.accounts[id].user})
	}
	s.mu.Unlock()

	for _, id := range members {
		if id == caller {
			continue
		}
		for _, ev := range joined {
			_ = s.Push(id, ev)
		}
	}

	resp.RespondCreated(w, conv)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	caller := s.callerID(r)
	chatID := chi.URLParam(r, "id")

	s.mu.Lock()
	gate := s.messageGates[chatID]
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	c, ok := s.chats[chatID]
	if !ok || !slices.Contains(c.participants, caller) {
		s.mu.Unlock()
		resp.RespondError(w, http.StatusNotFound, "Chat not found or user not participant")
		return
	}
	msgs := slices.Clone(s.messages[chatID])
	s.markReadLocked(chatID, caller)
	s.mu.Unlock()

	resp.RespondSuccess(w, msgs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var in contentInput
	if err := req.BindJSON(w, r, &in); err != nil {
		resp.RespondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if in.Content == "" {
		resp.RespondError(w, http.StatusBadRequest, "Message content is required")
		return
	}

	s.mu.Lock()
	fail := s.sendFailure
	s.mu.Unlock()

	if fail != nil {
		if fail.message == "" {
			w.WriteHeader(fail.status)
			return
		}
		resp.RespondError(w, fail.status, fail.message)
		return
	}

	m, err := s.Post(s.callerID(r), chi.URLParam(r, "id"), in.Content)
	if err != nil {
		resp.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	resp.RespondCreated(w, m)
}

// Post stores a message from senderID and delivers it to every other connected
// participant, the way a real send does.
func (s *Server) Post(senderID, chatID, content string) (model.Message, error) {
	s.mu.Lock()
	c, ok := s.chats[chatID]
	if !ok || !slices.Contains(c.participants, senderID) {
		s.mu.Unlock()
		return model.Message{}, errors.New("chat not found or user not participant")
	}

	m := model.Message{
		ID:        randx.MessageID(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
	s.messages[chatID] = append(s.messages[chatID], m)
	s.markReadLocked(chatID, senderID)
	recipients := slices.DeleteFunc(slices.Clone(c.participants), func(id string) bool { return id == senderID })
	s.mu.Unlock()

	for _, id := range recipients {
		_ = s.Push(id, transport.MessageDelivered{Message: m})
	}
	return m, nil
}

func (s *Server) markReadLocked(chatID, userID string) {
	if s.readAt[chatID] == nil {
		s.readAt[chatID] = make(map[string]int)
	}
	s.readAt[chatID][userID] = len(s.messages[chatID])
}

func (s *Server) conversationLocked(c *chatRecord, viewer string) model.Conversation {
	conv := model.Conversation{
		ID:      c.id,
		Name:    c.name,
		IsGroup: c.isGroup,
	}

	for _, id := range c.participants {
		if acc, ok := s.accounts[id]; ok {
			conv.Participants = append(conv.Participants, acc.user)
		}
	}

	msgs := s.messages[c.id]
	if n := len(msgs); n > 0 {
		last := msgs[n-1]
		conv.LastMessage = &last
	}

	for _, m := range msgs[s.readAt[c.id][viewer]:] {
		if m.SenderID != viewer {
			conv.UnreadCount++
		}
	}

	return conv
}

func (s *Server) findDirectLocked(a, b string) *chatRecord {
	for _, id := range s.order {
		c := s.chats[id]
		if !c.isGroup && len(c.participants) == 2 && slices.Contains(c.participants, a) && slices.Contains(c.participants, b) {
			return c
		}
	}
	return nil
}
