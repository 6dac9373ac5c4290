package api

import (
	"context"
	"net/http"

	"chatsync/internal/app/model"
	"chatsync/internal/app/user"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createChatRequest struct {
	ParticipantIDs []string `json:"participantIds"`
}

type createGroupRequest struct {
	Name           string   `json:"name"`
	ParticipantIDs []string `json:"participantIds"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (user.AuthUser, error) {
	var out user.AuthUser
	err := c.call(ctx, http.MethodPost, "/auth/login", nil, loginRequest{Email: email, Password: password}, &out)
	return out, err
}

// Register creates an account and returns its session.
func (c *Client) Register(ctx context.Context, username, email, password string) (user.AuthUser, error) {
	var out user.AuthUser
	err := c.call(ctx, http.MethodPost, "/auth/register", nil, registerRequest{
		Username: username,
		Email:    email,
		Password: password,
	}, &out)
	return out, err
}

// Me returns the user that owns the current token.
func (c *Client) Me(ctx context.Context) (user.User, error) {
	var out user.User
	err := c.call(ctx, http.MethodGet, "/users/me", nil, nil, &out)
	return out, err
}

// Users lists every other user.
func (c *Client) Users(ctx context.Context) ([]user.User, error) {
	var out []user.User
	err := c.call(ctx, http.MethodGet, "/users", nil, nil, &out)
	return out, err
}

// User fetches one user by id.
func (c *Client) User(ctx context.Context, id string) (user.User, error) {
	var out user.User
	err := c.call(ctx, http.MethodGet, "/users/{id}", map[string]string{"id": id}, nil, &out)
	return out, err
}

// Chats lists the conversations of the current user.
func (c *Client) Chats(ctx context.Context) ([]model.Conversation, error) {
	var out []model.Conversation
	err := c.call(ctx, http.MethodGet, "/chats", nil, nil, &out)
	return out, err
}

// Chat fetches one conversation by id.
func (c *Client) Chat(ctx context.Context, id string) (model.Conversation, error) {
	var out model.Conversation
	err := c.call(ctx, http.MethodGet, "/chats/{id}", map[string]string{"id": id}, nil, &out)
	return out, err
}

// Messages lists the messages of a conversation, oldest first.
func (c *Client) Messages(ctx context.Context, chatID string) ([]model.Message, error) {
	var out []model.Message
	err := c.call(ctx, http.MethodGet, "/chats/{id}/messages", map[string]string{"id": chatID}, nil, &out)
	return out, err
}

// CreateChat opens a direct conversation with the given participants.
func (c *Client) CreateChat(ctx context.Context, participantIDs []string) (model.Conversation, error) {
	var out model.Conversation
	err := c.call(ctx, http.MethodPost, "/chats", nil, createChatRequest{ParticipantIDs: participantIDs}, &out)
	return out, err
}

// CreateGroupChat creates a named group conversation.
func (c *Client) CreateGroupChat(ctx context.Context, name string, participantIDs []string) (model.Conversation, error) {
	var out model.Conversation
	err := c.call(ctx, http.MethodPost, "/chats/group", nil, createGroupRequest{
		Name:           name,
		ParticipantIDs: participantIDs,
	}, &out)
	return out, err
}

// SendMessage posts content to a conversation and returns the stored message.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (model.Message, error) {
	var out model.Message
	err := c.call(ctx, http.MethodPost, "/chats/{id}/messages", map[string]string{"id": chatID}, sendMessageRequest{Content: content}, &out)
	return out, err
}
