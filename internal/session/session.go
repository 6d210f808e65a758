// Package session holds per-browser-session relay state: the remote
// conversation identifier and, while a turn is suspended on an interactive
// sign-in, the pending credential request needed to resume it.
package session

import (
	"time"
)

// Session is one browser user's relay state.
//
// ConversationID is the identifier issued by the agent endpoint. It is created
// once per session and never changes afterwards. PendingAuth is non-nil
// exactly while the most recent turn ended awaiting authorization and has not
// yet been resumed.
type Session struct {
	ID             string
	ConversationID string
	PendingAuth    *PendingAuth
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PendingAuth is the state saved when a turn suspends on a credential request.
// AuthConfig is the opaque payload from the agent; it is echoed back verbatim,
// augmented with the redirect result, when the turn resumes. Callers must
// treat the map as read-only once stored.
type PendingAuth struct {
	FunctionCallID   string
	AuthorizationURI string
	AuthConfig       map[string]any
}
