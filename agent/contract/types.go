package contract

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation history.
// ActionRequests is only set on assistant messages; ToolCallID only on tool results.
type Message struct {
	Role           Role            `json:"role"`
	Content        string          `json:"content"`
	ActionRequests []ActionRequest `json:"action_requests,omitempty"`
	ToolCallID     string          `json:"tool_call_id,omitempty"`
	ActionName     ActionName      `json:"action_name,omitempty"`
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string, reqs ...ActionRequest) Message {
	return Message{Role: RoleAssistant, Content: content, ActionRequests: reqs}
}

func ToolResultMessage(req ActionRequest, result string) Message {
	return Message{
		Role:       RoleTool,
		Content:    result,
		ToolCallID: req.ID,
		ActionName: req.Action.ActionName(),
	}
}

// IsFinal reports whether m is an assistant message without pending actions.
func (m Message) IsFinal() bool {
	return m.Role == RoleAssistant && len(m.ActionRequests) == 0
}

// ActionRequest is a policy-emitted request to run one action, tagged with a
// correlation id that its tool result must echo.
type ActionRequest struct {
	ID     string
	Action Action
}

type actionRequestJSON struct {
	ID        string          `json:"id"`
	Name      ActionName      `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func (r ActionRequest) MarshalJSON() ([]byte, error) {
	if r.Action == nil {
		return nil, fmt.Errorf("%w: action request %s has no action", ErrValidation, r.ID)
	}
	args, err := json.Marshal(r.Action)
	if err != nil {
		return nil, fmt.Errorf("marshal action arguments: %w", err)
	}
	return json.Marshal(actionRequestJSON{
		ID:        r.ID,
		Name:      r.Action.ActionName(),
		Arguments: args,
	})
}

func (r *ActionRequest) UnmarshalJSON(data []byte) error {
	var raw actionRequestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	action, err := DecodeAction(string(raw.Name), raw.Arguments)
	if err != nil {
		return err
	}
	r.ID = raw.ID
	r.Action = action
	return nil
}

/* ---------------------------- History helpers ---------------------------- */

// ValidateHistory checks that every tool result answers an earlier action
// request in the same history.
func ValidateHistory(history []Message) error {
	requested := make(map[string]struct{}, 8)
	for i, m := range history {
		switch m.Role {
		case RoleAssistant:
			for _, req := range m.ActionRequests {
				requested[req.ID] = struct{}{}
			}
		case RoleTool:
			id := strings.TrimSpace(m.ToolCallID)
			if _, ok := requested[id]; !ok || id == "" {
				return fmt.Errorf("%w: index=%d tool_call_id=%q", ErrOrphanToolResult, i, m.ToolCallID)
			}
		}
	}
	return nil
}

// UnansweredRequests returns action requests that have no tool result yet,
// in history order.
func UnansweredRequests(history []Message) []ActionRequest {
	answered := make(map[string]struct{}, 8)
	for _, m := range history {
		if m.Role == RoleTool {
			answered[m.ToolCallID] = struct{}{}
		}
	}

	var pending []ActionRequest
	for _, m := range history {
		if m.Role != RoleAssistant {
			continue
		}
		for _, req := range m.ActionRequests {
			if _, ok := answered[req.ID]; !ok {
				pending = append(pending, req)
			}
		}
	}
	return pending
}
