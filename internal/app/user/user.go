/*
Package user contains core data structures related to user identity.

It defines the representation of a chat participant as delivered by the backend
(the User struct) and the authenticated variant returned by login and registration.
*/
package user

import "time"

// User represents the identity information of a chat participant.
// Only IsOnline and LastSeen change after creation, and only through presence events.
type User struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`

	// Username is the display name of the user.
	Username string `json:"username"`

	// Email is the account email address.
	Email string `json:"email,omitempty"`

	// Avatar is the URL for the user's avatar.
	Avatar string `json:"avatar,omitempty"`

	// IsOnline reports whether the user currently holds a real-time connection.
	IsOnline bool `json:"isOnline"`

	// LastSeen is the last time the user was seen online.
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// AuthUser is the login/registration response: the user plus its session token.
type AuthUser struct {
	User
	Token string `json:"token"`
}

// WithPresence returns a copy of u with the presence flag applied.
// Going offline stamps LastSeen with at.
func (u User) WithPresence(online bool, at time.Time) User {
	u.IsOnline = online
	if !online {
		seen := at
		u.LastSeen = &seen
	}
	return u
}
