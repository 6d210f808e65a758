package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ashureev/agent-relay/internal/session"
	"github.com/ashureev/agent-relay/internal/stream"
)

// NoResponseText is surfaced in place of an empty answer so "agent said
// nothing" is distinguishable from a transport bug returning blank text.
const NoResponseText = "No response text found."

// TurnResult is the outcome of a successfully completed turn. Exactly one
// field is set: AuthorizationURL when the turn suspended on a credential
// request, Text otherwise.
type TurnResult struct {
	Text             string
	AuthorizationURL string
}

// Orchestrator drives logical chat turns end to end: it opens the streaming
// request, feeds the decoder, aggregates interpreted events, and settles the
// turn's outcome against the session store.
//
// All turns for one session id are serialized through the store's per-session
// lock, so a resume can never race a fresh message against the same pending
// state.
type Orchestrator struct {
	client      *Client
	store       session.Store
	redirectURL string
}

// NewOrchestrator creates an orchestrator. redirectURL is the absolute URL of
// this relay's OAuth callback endpoint; it is echoed back to the agent inside
// the credential fulfillment.
func NewOrchestrator(client *Client, store session.Store, redirectURL string) *Orchestrator {
	return &Orchestrator{client: client, store: store, redirectURL: redirectURL}
}

// StartTurn sends a user message on the session's remote conversation and
// resolves the turn.
//
// When the event stream carries a credential request with a usable
// authorization URI, the request takes precedence over any accumulated text:
// the pending state is written to the session and the authorization URL is
// returned for the user to complete sign-in. Otherwise the concatenated text
// of the stream is returned, and any pending auth from an earlier abandoned
// sign-in is cleared: pending auth exists only while the latest turn is
// suspended.
func (o *Orchestrator) StartTurn(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	unlock := o.store.LockSession(sessionID)
	defer unlock()

	sess, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.ConversationID == "" {
		return nil, ErrNoSession
	}

	agg, err := o.streamTurn(ctx, sess.ConversationID, TextMessage(message))
	if err != nil {
		return nil, err
	}

	if req := agg.request(); req != nil {
		pending := &session.PendingAuth{
			FunctionCallID:   req.CallID,
			AuthorizationURI: req.AuthorizationURI,
			AuthConfig:       req.AuthConfig,
		}
		if err := o.store.SetPendingAuth(ctx, sessionID, pending); err != nil {
			return nil, fmt.Errorf("store pending auth: %w", err)
		}
		slog.Info("Turn suspended on credential request",
			"session_id", sessionID,
			"function_call_id", req.CallID,
		)
		return &TurnResult{AuthorizationURL: req.AuthorizationURI}, nil
	}

	// The turn settled without a credential request, so any suspension left
	// behind by an abandoned sign-in is superseded: a later auth code must
	// not resume against the stale call id.
	if sess.PendingAuth != nil {
		if err := o.store.ClearPendingAuth(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("clear stale pending auth: %w", err)
		}
		slog.Info("Cleared stale pending auth",
			"session_id", sessionID,
			"function_call_id", sess.PendingAuth.FunctionCallID,
		)
	}
	return &TurnResult{Text: agg.answer()}, nil
}

// ResumeTurn completes a suspended turn with the authorization code delivered
// by the browser redirect.
//
// The pending auth is consumed exactly once: it is cleared before the
// fulfillment stream is opened, so a failed resume requires a fresh turn
// rather than replaying stale credentials. The state parameter is echoed into
// the callback URI as a correlation value; it is not validated against the
// session that initiated the flow.
func (o *Orchestrator) ResumeTurn(ctx context.Context, sessionID, code, state string) (*TurnResult, error) {
	unlock := o.store.LockSession(sessionID)
	defer unlock()

	sess, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.ConversationID == "" {
		return nil, ErrNoSession
	}
	pending := sess.PendingAuth
	if pending == nil {
		return nil, ErrNoPendingAuth
	}

	if err := o.store.ClearPendingAuth(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("clear pending auth: %w", err)
	}

	authConfig := withAuthResponse(pending.AuthConfig, o.redirectURL, code, state)
	msg := CredentialMessage(pending.FunctionCallID, authConfig)

	agg, err := o.streamTurn(ctx, sess.ConversationID, msg)
	if err != nil {
		return nil, err
	}
	if agg.request() != nil {
		return nil, ErrDoubleAuthRequired
	}
	return &TurnResult{Text: agg.answer()}, nil
}

// streamTurn opens the streaming request and folds the decoded events into an
// aggregate. Malformed frames are logged and skipped; transport failures and
// a truncated stream fail the whole turn with nothing aggregated surfaced.
func (o *Orchestrator) streamTurn(ctx context.Context, conversationID string, msg Message) (*turnAggregate, error) {
	resp, err := o.client.OpenStream(ctx, conversationID, msg)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	dec := stream.NewDecoder(o.client.Framing())
	agg := &turnAggregate{}
	buf := make([]byte, 32*1024)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			drainFrames(dec, agg)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, &TransportError{Err: fmt.Errorf("read event stream: %w", readErr)}
		}
	}

	if err := dec.Close(); err != nil {
		return nil, err
	}
	return agg, nil
}

// drainFrames pulls every frame currently decodable and feeds it to the
// aggregate. Events that fail to decode contribute nothing and do not abort
// the turn.
func drainFrames(dec *stream.Decoder, agg *turnAggregate) {
	for {
		frame, err := dec.Next()
		if errors.Is(err, stream.ErrMoreData) {
			return
		}
		if err != nil {
			slog.Warn("Skipping malformed stream region", "error", err)
			continue
		}
		ev, err := stream.ParseEvent(frame)
		if err != nil {
			slog.Warn("Skipping malformed event", "error", err)
			continue
		}
		agg.add(stream.Interpret(ev))
	}
}

// turnAggregate folds interpreted events in arrival order. The first
// actionable credential request wins; a call id that arrived in a separate
// event from its auth config is correlated here.
type turnAggregate struct {
	text   strings.Builder
	callID string
	req    *stream.CredentialRequest
}

func (a *turnAggregate) add(in stream.Interpreted) {
	a.text.WriteString(in.Text)
	if in.CredentialCallID != "" && a.callID == "" {
		a.callID = in.CredentialCallID
	}
	if in.Request != nil && a.req == nil {
		a.req = in.Request
	}
}

func (a *turnAggregate) request() *stream.CredentialRequest {
	if a.req == nil {
		return nil
	}
	out := *a.req
	if out.CallID == "" {
		out.CallID = a.callID
	}
	return &out
}

func (a *turnAggregate) answer() string {
	if a.text.Len() == 0 {
		return NoResponseText
	}
	return a.text.String()
}

// withAuthResponse returns a copy of the stored auth config with the
// redirect-callback URI filled in at exchangedAuthCredential.oauth2
// .authResponseUri. The nesting is copied level by level so the stored
// pending payload is never mutated.
func withAuthResponse(cfg map[string]any, redirectURL, code, state string) map[string]any {
	out := make(map[string]any, len(cfg)+1)
	for k, v := range cfg {
		out[k] = v
	}
	cred, _ := out["exchangedAuthCredential"].(map[string]any)
	credCopy := make(map[string]any, len(cred)+1)
	for k, v := range cred {
		credCopy[k] = v
	}
	oauth2cfg, _ := credCopy["oauth2"].(map[string]any)
	oauthCopy := make(map[string]any, len(oauth2cfg)+1)
	for k, v := range oauth2cfg {
		oauthCopy[k] = v
	}

	q := url.Values{}
	q.Set("state", state)
	q.Set("code", code)
	oauthCopy["authResponseUri"] = redirectURL + "?" + q.Encode()

	credCopy["oauth2"] = oauthCopy
	out["exchangedAuthCredential"] = credCopy
	return out
}
