/*
Package errs provides custom error types and application-level error code constants.

These error codes classify every failure the client can report: input rejected before
any network call, failed API calls, session problems and real-time channel problems.
*/
package errs

// 1xxx: Validation Errors (caught before any network call)
const (
	// ErrInvalidParams indicates that a generic input validation failed.
	ErrInvalidParams = 1001

	// ErrRequiredField indicates that a mandatory field was empty.
	ErrRequiredField = 1002

	// ErrInvalidEmail indicates that the email address is malformed.
	ErrInvalidEmail = 1003

	// ErrPasswordTooShort indicates that the password is below the minimum length.
	ErrPasswordTooShort = 1004

	// ErrPasswordMismatch indicates that the password confirmation does not match.
	ErrPasswordMismatch = 1005

	// ErrGroupNameRequired indicates that a group was created without a name.
	ErrGroupNameRequired = 1101

	// ErrGroupMembersRequired indicates that a group was created without members.
	ErrGroupMembersRequired = 1102

	// ErrParticipantRequired indicates that a direct conversation was requested without a peer.
	ErrParticipantRequired = 1103

	// ErrEmptyMessage indicates that the message text is empty or whitespace only.
	ErrEmptyMessage = 1201

	// ErrNoActiveConversation indicates that an action needs an active conversation.
	ErrNoActiveConversation = 1202

	// ErrConversationNotFound indicates that the conversation is not in the local list.
	ErrConversationNotFound = 1203
)

// 2xxx: API / Network Errors
const (
	// ErrRequestFailed indicates that the request could not be completed.
	ErrRequestFailed = 2001

	// ErrServerRejected indicates a non-2xx response; its message comes from the server when present.
	ErrServerRejected = 2002

	// ErrInvalidResponse indicates that the response body could not be decoded.
	ErrInvalidResponse = 2003
)

// 3xxx: Session Errors
const (
	// ErrUnauthorized indicates that the action requires an authenticated session.
	ErrUnauthorized = 3001

	// ErrSessionExpired indicates that the cached token is no longer valid.
	ErrSessionExpired = 3002

	// ErrTokenStorage indicates that the token could not be read or written.
	ErrTokenStorage = 3003
)

// 4xxx: Real-time Channel Errors (logged, never surfaced to the user)
const (
	// ErrNotConnected indicates that an event was published while the connection was not open.
	ErrNotConnected = 4001

	// ErrInvalidEnvelope indicates that an inbound frame was not a valid {type, payload} envelope.
	ErrInvalidEnvelope = 4002

	// ErrUnknownEventKind indicates that an inbound envelope carried an unrecognized type.
	ErrUnknownEventKind = 4003

	// ErrSendQueueFull indicates that the outbound buffer of the connection is full.
	ErrSendQueueFull = 4004
)

// 5xxx: Internal Errors
const (
	// ErrUnknown represents an unclassified error.
	ErrUnknown = 5000
)
