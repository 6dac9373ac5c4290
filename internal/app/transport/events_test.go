package transport

import (
	"testing"

	"chatsync/internal/pkg/errs"
)

func TestDecodeKinds(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, ev Event)
	}{
		{
			name:  "message",
			frame: `{"type":"message","payload":{"id":"m1","chatId":"c1","senderId":"u2","content":"hi","timestamp":"2024-01-01T00:00:00Z","isRead":false}}`,
			check: func(t *testing.T, ev Event) {
				m := ev.(MessageDelivered).Message
				if m.ID != "m1" || m.ChatID != "c1" || m.Content != "hi" {
					t.Errorf("unexpected message %+v", m)
				}
			},
		},
		{
			name:  "typing",
			frame: `{"type":"typing","payload":{"chatId":"c1","userId":"u2","isTyping":true}}`,
			check: func(t *testing.T, ev Event) {
				if got := ev.(TypingChanged); got != (TypingChanged{ChatID: "c1", UserID: "u2", IsTyping: true}) {
					t.Errorf("unexpected typing %+v", got)
				}
			},
		},
		{
			name:  "status",
			frame: `{"type":"status","payload":{"userId":"u2","isOnline":true}}`,
			check: func(t *testing.T, ev Event) {
				if got := ev.(PresenceChanged); got != (PresenceChanged{UserID: "u2", IsOnline: true}) {
					t.Errorf("unexpected presence %+v", got)
				}
			},
		},
		{
			name:  "join",
			frame: `{"type":"join","payload":{"chatId":"c1","user":{"id":"u3","username":"carol","isOnline":false}}}`,
			check: func(t *testing.T, ev Event) {
				j := ev.(ParticipantJoined)
				if j.ChatID != "c1" || j.User.ID != "u3" {
					t.Errorf("unexpected join %+v", j)
				}
			},
		},
		{
			name:  "leave",
			frame: `{"type":"leave","payload":{"chatId":"c1","userId":"u3"}}`,
			check: func(t *testing.T, ev Event) {
				if got := ev.(ParticipantLeft); got != (ParticipantLeft{ChatID: "c1", UserID: "u3"}) {
					t.Errorf("unexpected leave %+v", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if string(ev.Kind()) != tt.name {
				t.Fatalf("Kind = %q", ev.Kind())
			}
			tt.check(t, ev)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		code  int
	}{
		{"unknown kind", `{"type":"reaction","payload":{}}`, errs.ErrUnknownEventKind},
		{"not json", `hello`, errs.ErrInvalidEnvelope},
		{"bad payload", `{"type":"typing","payload":"oops"}`, errs.ErrInvalidEnvelope},
	}

	for _, tt := range tests {
		if _, err := Decode([]byte(tt.frame)); !errs.Is(err, tt.code) {
			t.Errorf("%s: err = %v, want code %d", tt.name, err, tt.code)
		}
	}
}

func TestEncodeTyping(t *testing.T) {
	data, err := Encode(TypingChanged{ChatID: "c1", UserID: "u1", IsTyping: true})
	if err != nil {
		t.Fatal(err)
	}

	ev, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if ev.(TypingChanged).UserID != "u1" {
		t.Errorf("encoded frame decoded to %+v", ev)
	}
}
