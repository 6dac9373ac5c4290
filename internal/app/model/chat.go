/*
Package model defines the chat entities shared by the transport, the API client and the stores.
*/
package model

import (
	"time"

	"chatsync/internal/app/user"
)

// UnknownUserName is shown for a direct conversation whose other participant is not known.
const UnknownUserName = "Unknown User"

// Message is a server-confirmed chat message.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"isRead"`
}

// Conversation is a direct or group chat as listed by the backend.
type Conversation struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	IsGroup      bool        `json:"isGroup"`
	Participants []user.User `json:"participants"`
	LastMessage  *Message    `json:"lastMessage,omitempty"`
	UnreadCount  int         `json:"unreadCount"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.participantIndex(userID) >= 0
}

// Participant returns the participant with userID.
func (c *Conversation) Participant(userID string) (user.User, bool) {
	if i := c.participantIndex(userID); i >= 0 {
		return c.Participants[i], true
	}
	return user.User{}, false
}

func (c *Conversation) participantIndex(userID string) int {
	for i := range c.Participants {
		if c.Participants[i].ID == userID {
			return i
		}
	}
	return -1
}

// Peer returns the first participant that is not selfID.
func (c *Conversation) Peer(selfID string) (user.User, bool) {
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p, true
		}
	}
	return user.User{}, false
}

// DisplayName is the group name, or the other participant's username for direct chats.
func (c *Conversation) DisplayName(selfID string) string {
	if c.IsGroup {
		return c.Name
	}
	if peer, ok := c.Peer(selfID); ok && peer.Username != "" {
		return peer.Username
	}
	return UnknownUserName
}

// Clone returns a deep copy safe to hand out of a store.
func (c Conversation) Clone() Conversation {
	if c.Participants != nil {
		participants := make([]user.User, len(c.Participants))
		copy(participants, c.Participants)
		c.Participants = participants
	}
	if c.LastMessage != nil {
		last := *c.LastMessage
		c.LastMessage = &last
	}
	return c
}
