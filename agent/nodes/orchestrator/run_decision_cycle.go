package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
)

type CycleDeps struct {
	Policy    contractx.Policy
	Executor  contractx.ActionExecutor
	Store     contractx.HistoryStore
	MaxRounds int
}

// RunDecisionCycle alternates between asking the policy and executing the
// requested actions until the policy answers without actions. Every message
// is persisted before the next step starts.
func RunDecisionCycle(ctx context.Context, in *GraphState, deps CycleDeps) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	logger := log.With().Str("user_id", in.UserID).Logger()

	for round := 1; round <= deps.MaxRounds; round++ {
		in.Rounds = round

		msg, err := deps.Policy.Decide(ctx, in.History)
		if err != nil {
			return nil, fmt.Errorf("policy round %d: %w", round, err)
		}
		if msg.Role == "" {
			msg.Role = contractx.RoleAssistant
		}
		if err := deps.Store.Append(ctx, in.UserID, msg); err != nil {
			return nil, fmt.Errorf("persist assistant message: %w", err)
		}
		in.History = append(in.History, msg)

		if msg.IsFinal() {
			in.Reply = msg.Content
			logger.Debug().Int("round", round).Msg("policy returned final answer")
			return in, nil
		}

		for _, req := range msg.ActionRequests {
			logger.Info().Int("round", round).Str("action", string(req.Action.ActionName())).Str("call_id", req.ID).Msg("executing action")
			result := deps.Executor.Execute(ctx, in.UserID, req.Action)

			toolMsg := contractx.ToolResultMessage(req, result)
			if err := deps.Store.Append(ctx, in.UserID, toolMsg); err != nil {
				return nil, fmt.Errorf("persist result of %s: %w", req.ID, err)
			}
			in.History = append(in.History, toolMsg)
		}
	}

	return nil, fmt.Errorf("%w: %d rounds", contractx.ErrMaxRoundsExceeded, deps.MaxRounds)
}
