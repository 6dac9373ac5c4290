package model

import (
	"testing"

	"chatsync/internal/app/user"
)

func TestDisplayName(t *testing.T) {
	alice := user.User{ID: "a", Username: "alice"}
	bob := user.User{ID: "b", Username: "bob"}

	tests := []struct {
		name string
		conv Conversation
		self string
		want string
	}{
		{"group uses its name", Conversation{Name: "team", IsGroup: true, Participants: []user.User{alice, bob}}, "a", "team"},
		{"direct uses peer", Conversation{Participants: []user.User{alice, bob}}, "a", "bob"},
		{"direct from other side", Conversation{Participants: []user.User{alice, bob}}, "b", "alice"},
		{"direct without peer", Conversation{Participants: []user.User{alice}}, "a", UnknownUserName},
	}

	for _, tt := range tests {
		if got := tt.conv.DisplayName(tt.self); got != tt.want {
			t.Errorf("%s: DisplayName = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := Conversation{
		ID:           "c1",
		Participants: []user.User{{ID: "a"}},
		LastMessage:  &Message{ID: "m1"},
	}

	cp := orig.Clone()
	cp.Participants[0].IsOnline = true
	cp.LastMessage.ID = "m2"

	if orig.Participants[0].IsOnline || orig.LastMessage.ID != "m1" {
		t.Fatal("Clone shares state with the original")
	}
}
