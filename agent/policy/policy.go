// Package policy asks the chat model for the next assistant message and
// decodes its tool calls into typed action requests.
package policy

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
)

type Policy struct {
	runner compose.Runnable[[]contractx.Message, *schema.Message]
}

var _ contractx.Policy = (*Policy)(nil)

// New binds tools to chatModel and compiles the decide graph.
func New(ctx context.Context, chatModel einomodel.ToolCallingChatModel, tools []*schema.ToolInfo) (*Policy, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}

	toolModel, err := chatModel.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
	}

	runner, err := compileDecideGraph(ctx, toolModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return &Policy{runner: runner}, nil
}

// Decide returns the assistant's next message. Tool calls naming an
// unregistered action fail with contractx.ErrUnknownAction.
func (p *Policy) Decide(ctx context.Context, history []contractx.Message) (contractx.Message, error) {
	out, err := p.runner.Invoke(ctx, history)
	if err != nil {
		return contractx.Message{}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if out == nil {
		return contractx.Message{}, fmt.Errorf("%w: model returned no message", contractx.ErrModelInvoke)
	}
	return decodeAssistant(out)
}

func decodeAssistant(out *schema.Message) (contractx.Message, error) {
	reqs := make([]contractx.ActionRequest, 0, len(out.ToolCalls))
	for _, call := range out.ToolCalls {
		action, err := contractx.DecodeAction(call.Function.Name, []byte(call.Function.Arguments))
		if err != nil {
			return contractx.Message{}, fmt.Errorf("decode tool call %s: %w", call.ID, err)
		}

		id := strings.TrimSpace(call.ID)
		if id == "" {
			id = "call_" + uuid.NewString()
			log.Debug().Str("action", call.Function.Name).Str("id", id).Msg("model omitted tool call id")
		}
		reqs = append(reqs, contractx.ActionRequest{ID: id, Action: action})
	}
	return contractx.AssistantMessage(out.Content, reqs...), nil
}
