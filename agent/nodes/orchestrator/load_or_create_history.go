package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
)

// InterruptedActionResult answers action requests left without a result by
// a turn that never finished.
const InterruptedActionResult = "La acción fue interrumpida antes de completarse y no se ejecutó."

// LoadOrCreateHistory loads the user's history or seeds a new one with the
// system prompt. A history holding orphaned tool results is discarded and
// reseeded; requests left unanswered by an interrupted turn are closed with
// a synthetic result so the model sees a consistent transcript.
func LoadOrCreateHistory(
	ctx context.Context,
	in *GraphState,
	store contractx.HistoryStore,
	systemPrompt string,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	history, err := store.List(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	if len(history) > 0 {
		if err := contractx.ValidateHistory(history); err != nil {
			log.Warn().Err(err).Str("user_id", in.UserID).Msg("discarding inconsistent history")
			if err := store.Delete(ctx, in.UserID); err != nil {
				return nil, fmt.Errorf("discard history: %w", err)
			}
			history = nil
		}
	}

	if len(history) == 0 {
		seed := contractx.SystemMessage(systemPrompt)
		if err := store.Append(ctx, in.UserID, seed); err != nil {
			return nil, fmt.Errorf("seed history: %w", err)
		}
		log.Info().Str("user_id", in.UserID).Msg("new conversation history created")
		in.History = []contractx.Message{seed}
		return in, nil
	}

	pending := contractx.UnansweredRequests(history)
	if len(pending) > 0 {
		closing := make([]contractx.Message, 0, len(pending))
		for _, req := range pending {
			closing = append(closing, contractx.ToolResultMessage(req, InterruptedActionResult))
		}
		if err := store.Append(ctx, in.UserID, closing...); err != nil {
			return nil, fmt.Errorf("close interrupted actions: %w", err)
		}
		log.Warn().Str("user_id", in.UserID).Int("pending", len(pending)).Msg("closed actions left by an interrupted turn")
		history = append(history, closing...)
	}

	in.History = history
	return in, nil
}
