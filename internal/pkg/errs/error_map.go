/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError template used to report
the failure to the user.
*/
package errs

import "net/http"

// GenericMessage is the fallback text when the server supplies no message of its own.
const GenericMessage = "Something went wrong"

// errorMap stores the CustomError template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: Validation Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid input."},
	ErrRequiredField:        {Code: ErrRequiredField, Message: "Please fill in %s."},
	ErrInvalidEmail:         {Code: ErrInvalidEmail, Message: "Please enter a valid email address."},
	ErrPasswordTooShort:     {Code: ErrPasswordTooShort, Message: "Password must be at least %d characters."},
	ErrPasswordMismatch:     {Code: ErrPasswordMismatch, Message: "Passwords don't match."},
	ErrGroupNameRequired:    {Code: ErrGroupNameRequired, Message: "Please enter a group name."},
	ErrGroupMembersRequired: {Code: ErrGroupMembersRequired, Message: "Please select at least one member."},
	ErrParticipantRequired:  {Code: ErrParticipantRequired, Message: "Please select a user."},
	ErrEmptyMessage:         {Code: ErrEmptyMessage, Message: "Message is empty."},
	ErrNoActiveConversation: {Code: ErrNoActiveConversation, Message: "Open a conversation first."},
	ErrConversationNotFound: {Code: ErrConversationNotFound, Message: "Conversation not found."},

	// 2xxx: API / Network Errors
	ErrRequestFailed:   {Code: ErrRequestFailed, Message: "Please check your connection and try again."},
	ErrServerRejected:  {Code: ErrServerRejected, Message: GenericMessage},
	ErrInvalidResponse: {Code: ErrInvalidResponse, Message: "Unexpected response from server."},

	// 3xxx: Session Errors
	ErrUnauthorized:   {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrSessionExpired: {Code: ErrSessionExpired, Message: "Your session has expired.", Status: http.StatusUnauthorized},
	ErrTokenStorage:   {Code: ErrTokenStorage, Message: "Could not access the saved session."},

	// 4xxx: Real-time Channel Errors
	ErrNotConnected:     {Code: ErrNotConnected, Message: "Real-time connection is not open."},
	ErrInvalidEnvelope:  {Code: ErrInvalidEnvelope, Message: "Malformed real-time message."},
	ErrUnknownEventKind: {Code: ErrUnknownEventKind, Message: "Unknown real-time message type %q."},
	ErrSendQueueFull:    {Code: ErrSendQueueFull, Message: "Real-time send queue is full."},

	// 5xxx: Internal Errors
	ErrUnknown: {Code: ErrUnknown, Message: GenericMessage},
}
