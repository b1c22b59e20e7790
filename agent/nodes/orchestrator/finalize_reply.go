package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	return GraphOutput{Reply: strings.TrimSpace(in.Reply), Rounds: in.Rounds}, nil
}
