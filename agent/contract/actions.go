package contract

import (
	"encoding/json"
	"fmt"
	"strings"
)

type ActionName string

const (
	ActionKnowledgeLookup ActionName = "get_knowledge_base_response"
	ActionAddToCart       ActionName = "add_item_to_cart"
	ActionViewCart        ActionName = "view_cart"
	ActionCheckout        ActionName = "checkout"
	ActionTalkToHuman     ActionName = "talk_to_human"
)

// ActionNames lists every registered action in the order they are offered to the policy.
var ActionNames = []ActionName{
	ActionKnowledgeLookup,
	ActionAddToCart,
	ActionViewCart,
	ActionCheckout,
	ActionTalkToHuman,
}

// Action is the closed set of operations the policy may request.
// Only the types declared in this file implement it.
type Action interface {
	ActionName() ActionName
	sealed()
}

type KnowledgeLookup struct {
	Query string `json:"user_query"`
}

type AddToCart struct {
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
}

type ViewCart struct{}

type Checkout struct{}

type TalkToHuman struct {
	Reason string `json:"reason"`
}

func (KnowledgeLookup) ActionName() ActionName { return ActionKnowledgeLookup }
func (AddToCart) ActionName() ActionName       { return ActionAddToCart }
func (ViewCart) ActionName() ActionName        { return ActionViewCart }
func (Checkout) ActionName() ActionName        { return ActionCheckout }
func (TalkToHuman) ActionName() ActionName     { return ActionTalkToHuman }

func (KnowledgeLookup) sealed() {}
func (AddToCart) sealed()       {}
func (ViewCart) sealed()        {}
func (Checkout) sealed()        {}
func (TalkToHuman) sealed()     {}

// DecodeAction builds the typed action for name from its JSON arguments.
// Unregistered names fail with ErrUnknownAction.
func DecodeAction(name string, args []byte) (Action, error) {
	switch ActionName(strings.TrimSpace(name)) {
	case ActionKnowledgeLookup:
		var a KnowledgeLookup
		if err := decodeArgs(name, args, &a); err != nil {
			return nil, err
		}
		if strings.TrimSpace(a.Query) == "" {
			return nil, fmt.Errorf("%w: %s requires user_query", ErrSchemaViolation, name)
		}
		return a, nil
	case ActionAddToCart:
		var a AddToCart
		if err := decodeArgs(name, args, &a); err != nil {
			return nil, err
		}
		if strings.TrimSpace(a.ItemName) == "" {
			return nil, fmt.Errorf("%w: %s requires item_name", ErrSchemaViolation, name)
		}
		return a, nil
	case ActionViewCart:
		return ViewCart{}, nil
	case ActionCheckout:
		return Checkout{}, nil
	case ActionTalkToHuman:
		var a TalkToHuman
		if err := decodeArgs(name, args, &a); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
}

func decodeArgs(name string, args []byte, dst any) error {
	trimmed := strings.TrimSpace(string(args))
	if trimmed == "" || trimmed == "null" {
		trimmed = "{}"
	}
	if err := json.Unmarshal([]byte(trimmed), dst); err != nil {
		return fmt.Errorf("%w: invalid arguments for action=%s: %v", ErrSchemaViolation, name, err)
	}
	return nil
}
