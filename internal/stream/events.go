package stream

import (
	"encoding/json"
	"fmt"
)

// CredentialRequestTool is the reserved tool name through which the agent asks
// the user to complete an interactive sign-in before a tool can run.
const CredentialRequestTool = "adk_request_credential"

// Event is one decoded unit from the agent's response stream. It is transient:
// events exist only while a turn is being processed and are never persisted.
type Event struct {
	Author  string   `json:"author,omitempty"`
	Content *Content `json:"content,omitempty"`
	Actions *Actions `json:"actions,omitempty"`
}

// Content carries the message parts of an event.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// Part is a single piece of event content: plain text, a function call, or a
// function response. Different endpoint flavors spell the function-call field
// either camelCased or snake_cased; both are accepted on decode.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// UnmarshalJSON accepts both the camelCase and snake_case field spellings.
func (p *Part) UnmarshalJSON(data []byte) error {
	var raw struct {
		Text                  string            `json:"text"`
		FunctionCall          *FunctionCall     `json:"functionCall"`
		FunctionCallSnake     *FunctionCall     `json:"function_call"`
		FunctionResponse      *FunctionResponse `json:"functionResponse"`
		FunctionResponseSnake *FunctionResponse `json:"function_response"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Text = raw.Text
	p.FunctionCall = raw.FunctionCall
	if p.FunctionCall == nil {
		p.FunctionCall = raw.FunctionCallSnake
	}
	p.FunctionResponse = raw.FunctionResponse
	if p.FunctionResponse == nil {
		p.FunctionResponse = raw.FunctionResponseSnake
	}
	return nil
}

// FunctionCall is a tool invocation requested by the agent.
type FunctionCall struct {
	Name string         `json:"name"`
	ID   string         `json:"id,omitempty"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse is the result of a tool invocation, echoed back to the
// agent correlated by the originating call's id.
type FunctionResponse struct {
	Name     string         `json:"name"`
	ID       string         `json:"id,omitempty"`
	Response map[string]any `json:"response,omitempty"`
}

// Actions carries side-channel directives attached to an event. Some endpoint
// flavors deliver credential requests here, keyed by tool call id, instead of
// inside the function call's arguments.
type Actions struct {
	RequestedAuthConfigs map[string]map[string]any `json:"requestedAuthConfigs,omitempty"`
}

// ParseEvent decodes a single frame into an Event. A frame that is valid JSON
// but lacks the expected shape decodes to an empty event rather than failing;
// only invalid JSON is an error.
func ParseEvent(frame json.RawMessage) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}
	return &ev, nil
}
