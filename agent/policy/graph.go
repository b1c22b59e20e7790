package policy

import (
	"context"
	"encoding/json"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
)

func compileDecideGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
) (compose.Runnable[[]contractx.Message, *schema.Message], error) {
	graph := compose.NewGraph[[]contractx.Message, *schema.Message]()

	if err := graph.AddLambdaNode("to_messages", compose.InvokableLambda(toSchemaMessages)); err != nil {
		return nil, fmt.Errorf("add decide to_messages node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add decide model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "to_messages"); err != nil {
		return nil, fmt.Errorf("add decide edge start->to_messages: %w", err)
	}
	if err := graph.AddEdge("to_messages", "model"); err != nil {
		return nil, fmt.Errorf("add decide edge to_messages->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add decide edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("policy.decide_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile decide graph: %w", err)
	}
	return runner, nil
}

func toSchemaMessages(_ context.Context, history []contractx.Message) ([]*schema.Message, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: history is empty", contractx.ErrValidation)
	}

	out := make([]*schema.Message, 0, len(history))
	for i, m := range history {
		switch m.Role {
		case contractx.RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case contractx.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case contractx.RoleAssistant:
			calls := make([]schema.ToolCall, 0, len(m.ActionRequests))
			for _, req := range m.ActionRequests {
				args, err := json.Marshal(req.Action)
				if err != nil {
					return nil, fmt.Errorf("%w: marshal arguments of %s: %v", contractx.ErrValidation, req.ID, err)
				}
				calls = append(calls, schema.ToolCall{
					ID:   req.ID,
					Type: "function",
					Function: schema.FunctionCall{
						Name:      string(req.Action.ActionName()),
						Arguments: string(args),
					},
				})
			}
			if len(calls) == 0 {
				calls = nil
			}
			out = append(out, schema.AssistantMessage(m.Content, calls))
		case contractx.RoleTool:
			out = append(out, schema.ToolMessage(m.Content, m.ToolCallID))
		default:
			return nil, fmt.Errorf("%w: unknown role %q at index %d", contractx.ErrValidation, m.Role, i)
		}
	}
	return out, nil
}
