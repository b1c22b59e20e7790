package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
)

func AppendUserMessage(ctx context.Context, in *GraphState, store contractx.HistoryStore) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	msg := contractx.UserMessage(in.Text)
	if err := store.Append(ctx, in.UserID, msg); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}
	in.History = append(in.History, msg)
	return in, nil
}
