/*
Package transport owns the single real-time connection of a chat session.

This file defines the wire envelope and the five typed events it can carry, and the
codec between them. Anything that does not decode into one of the five kinds is
reported as an error so the caller can log and drop it.
*/
package transport

import (
	"github.com/goccy/go-json"

	"chatsync/internal/app/model"
	"chatsync/internal/app/user"
	"chatsync/internal/pkg/errs"
)

// Kind is the envelope type tag.
type Kind string

const (
	// KindMessage carries a full Message that was delivered to a conversation.
	KindMessage Kind = "message"

	// KindTyping carries a typing-started/stopped flag for a user in a conversation.
	KindTyping Kind = "typing"

	// KindStatus carries a user's online/offline flag.
	KindStatus Kind = "status"

	// KindJoin carries a participant added to a conversation.
	KindJoin Kind = "join"

	// KindLeave carries a participant removed from a conversation.
	KindLeave Kind = "leave"
)

// Envelope is the JSON frame exchanged over the real-time channel.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is one decoded real-time event.
type Event interface {
	Kind() Kind
}

// MessageDelivered reports a message delivered to a conversation.
type MessageDelivered struct {
	Message model.Message
}

// TypingChanged reports a user starting or stopping typing.
type TypingChanged struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// PresenceChanged reports a user going online or offline.
type PresenceChanged struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// ParticipantJoined reports a user added to a conversation.
type ParticipantJoined struct {
	ChatID string    `json:"chatId"`
	User   user.User `json:"user"`
}

// ParticipantLeft reports a user removed from a conversation.
type ParticipantLeft struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

func (MessageDelivered) Kind() Kind  { return KindMessage }
func (TypingChanged) Kind() Kind     { return KindTyping }
func (PresenceChanged) Kind() Kind   { return KindStatus }
func (ParticipantJoined) Kind() Kind { return KindJoin }
func (ParticipantLeft) Kind() Kind   { return KindLeave }

// Decode parses one inbound frame.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errs.Wrap(errs.ErrInvalidEnvelope, err)
	}

	var (
		ev  Event
		err error
	)

	switch env.Type {
	case KindMessage:
		var m model.Message
		err = json.Unmarshal(env.Payload, &m)
		ev = MessageDelivered{Message: m}

	case KindTyping:
		var t TypingChanged
		err = json.Unmarshal(env.Payload, &t)
		ev = t

	case KindStatus:
		var p PresenceChanged
		err = json.Unmarshal(env.Payload, &p)
		ev = p

	case KindJoin:
		var j ParticipantJoined
		err = json.Unmarshal(env.Payload, &j)
		ev = j

	case KindLeave:
		var l ParticipantLeft
		err = json.Unmarshal(env.Payload, &l)
		ev = l

	default:
		return nil, errs.NewError(errs.ErrUnknownEventKind, string(env.Type))
	}

	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidEnvelope, err)
	}

	return ev, nil
}

// Encode builds the outbound frame for ev.
func Encode(ev Event) ([]byte, error) {
	var payload any = ev
	if m, ok := ev.(MessageDelivered); ok {
		payload = m.Message
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{Type: ev.Kind(), Payload: raw})
}
