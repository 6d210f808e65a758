package stream

// CredentialRequest describes an actionable request from the agent for the
// user to complete an OAuth sign-in. AuthConfig is the opaque payload from the
// agent that must be echoed back, augmented with the redirect result, when the
// turn is resumed.
type CredentialRequest struct {
	CallID           string
	AuthorizationURI string
	AuthConfig       map[string]any
}

// Interpreted is the result of interpreting one decoded event.
//
// CredentialCallID is set whenever a credential-request function call was seen
// in the event, even when the call carried no usable auth config — some
// endpoint flavors deliver the call id and the auth config in separate places,
// and the caller correlates them across the turn.
type Interpreted struct {
	Text             string
	CredentialCallID string
	Request          *CredentialRequest
}

// Interpret extracts the relevant pieces from one event. It is a pure
// function: no state is created or mutated.
//
// Text fragments within the event are concatenated in order. A credential
// request is recognized only for the reserved tool name, and is actionable
// only when its auth config carries a non-empty OAuth2 authorization URI;
// otherwise the call is informational and Request stays nil.
func Interpret(ev *Event) Interpreted {
	var out Interpreted
	if ev == nil {
		return out
	}

	if ev.Content != nil {
		for _, part := range ev.Content.Parts {
			out.Text += part.Text

			call := part.FunctionCall
			if call == nil || call.Name != CredentialRequestTool {
				continue
			}
			out.CredentialCallID = call.ID
			cfg, _ := call.Args["authConfig"].(map[string]any)
			if cfg == nil {
				continue
			}
			if uri := AuthorizationURI(cfg); uri != "" && out.Request == nil {
				out.Request = &CredentialRequest{
					CallID:           call.ID,
					AuthorizationURI: uri,
					AuthConfig:       cfg,
				}
			}
		}
	}

	// Alternate delivery: the auth config arrives on the event's actions,
	// keyed by tool call id, with only the bare function call in the parts.
	if ev.Actions != nil && out.Request == nil {
		for _, cfg := range ev.Actions.RequestedAuthConfigs {
			if uri := AuthorizationURI(cfg); uri != "" {
				out.Request = &CredentialRequest{
					AuthorizationURI: uri,
					AuthConfig:       cfg,
				}
				break
			}
		}
	}

	return out
}

// AuthorizationURI digs the OAuth2 authorization URI out of an auth config
// payload. It returns "" when any level of the nesting is absent.
func AuthorizationURI(cfg map[string]any) string {
	cred, _ := cfg["exchangedAuthCredential"].(map[string]any)
	oauth2, _ := cred["oauth2"].(map[string]any)
	uri, _ := oauth2["authUri"].(string)
	return uri
}
