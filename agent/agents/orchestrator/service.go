package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
	nodex "github.com/tanpawarit/semilla-assistant/agent/nodes/orchestrator"
	metricsx "github.com/tanpawarit/semilla-assistant/pkg/metrics"
)

const (
	FallbackUnexpected = "Lo siento, ocurrió un error inesperado. Por favor, intenta de nuevo más tarde."
	FallbackNoAnswer   = "Lo siento, tuve un problema para procesar tu mensaje."
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidUser    = nodex.ErrInvalidUser
	ErrEmptyReply     = errors.New("policy produced an empty final answer")
)

type Config struct {
	MaxRounds        int           `envconfig:"MAX_ROUNDS" split_words:"true" default:"6"`
	ResetClearsCart  bool          `envconfig:"RESET_CLEARS_CART" split_words:"true" default:"false"`
	TurnTimeout      time.Duration `envconfig:"TURN_TIMEOUT" split_words:"true" default:"90s"`
	SystemPromptPath string        `envconfig:"SYSTEM_PROMPT_PATH" split_words:"true"`
	HumanContact     string        `envconfig:"HUMAN_CONTACT_NUMBER" split_words:"true"`
}

func (c Config) Validate() error {
	if c.MaxRounds <= 0 {
		return fmt.Errorf("%w: max rounds must be positive", contractx.ErrValidation)
	}
	return nil
}

// CartDeleter is the part of the cart store the reset command needs.
type CartDeleter interface {
	Delete(ctx context.Context, userID string) error
}

type Deps struct {
	History      contractx.HistoryStore
	Carts        CartDeleter
	Policy       contractx.Policy
	Executor     contractx.ActionExecutor
	SystemPrompt string
	Metrics      *metricsx.Metrics
}

type Orchestrator struct {
	history  contractx.HistoryStore
	carts    CartDeleter
	policy   contractx.Policy
	executor contractx.ActionExecutor
	metrics  *metricsx.Metrics

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]
	locks       *keyedMutex

	systemPrompt    string
	maxRounds       int
	resetClearsCart bool
	turnTimeout     time.Duration

	now func() time.Time
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.History == nil {
		return nil, errors.New("history store is required")
	}
	if deps.Policy == nil {
		return nil, errors.New("policy is required")
	}
	if deps.Executor == nil {
		return nil, errors.New("action executor is required")
	}
	systemPrompt := strings.TrimSpace(deps.SystemPrompt)
	if systemPrompt == "" {
		return nil, fmt.Errorf("%w: system prompt is empty", contractx.ErrPromptMissing)
	}
	if cfg.ResetClearsCart && deps.Carts == nil {
		return nil, errors.New("cart store is required when reset clears the cart")
	}

	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 6
	}

	o := &Orchestrator{
		history:         deps.History,
		carts:           deps.Carts,
		policy:          deps.Policy,
		executor:        deps.Executor,
		metrics:         deps.Metrics,
		locks:           newKeyedMutex(),
		systemPrompt:    systemPrompt,
		maxRounds:       maxRounds,
		resetClearsCart: cfg.ResetClearsCart,
		turnTimeout:     cfg.TurnTimeout,
		now:             time.Now,
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleMessage runs one turn for userID and returns the text to send back.
// On failure the returned text is a fixed fallback and err carries the cause.
// Turns for the same user run one at a time.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID string, text string) (string, error) {
	start := o.now()
	userID = strings.TrimSpace(userID)
	logger := log.With().Str("user_id", userID).Logger()

	unlock, err := o.locks.Lock(ctx, userID)
	if err != nil {
		o.metrics.ObserveTurn(metricsx.OutcomeFallback, o.now().Sub(start))
		return FallbackUnexpected, fmt.Errorf("wait for user turn: %w", err)
	}
	defer unlock()

	if o.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.turnTimeout)
		defer cancel()
	}

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		UserID: userID,
		Text:   text,
	})
	if err != nil {
		logger.Error().Err(err).Msg("turn aborted")
		o.metrics.ObserveTurn(metricsx.OutcomeFallback, o.now().Sub(start))
		return FallbackUnexpected, err
	}
	if out.Reply == "" {
		logger.Error().Int("rounds", out.Rounds).Msg("policy returned an empty final answer")
		o.metrics.ObserveTurn(metricsx.OutcomeFallback, o.now().Sub(start))
		return FallbackNoAnswer, ErrEmptyReply
	}

	logger.Info().Int("rounds", out.Rounds).Dur("elapsed", o.now().Sub(start)).Msg("turn completed")
	o.metrics.ObserveTurn(metricsx.OutcomeOK, o.now().Sub(start))
	return out.Reply, nil
}

// ClearMemory deletes the user's conversation history, and the cart too
// when the orchestrator is configured to couple them.
func (o *Orchestrator) ClearMemory(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidUser
	}

	unlock, err := o.locks.Lock(ctx, userID)
	if err != nil {
		return fmt.Errorf("wait for user turn: %w", err)
	}
	defer unlock()

	if err := o.history.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if o.resetClearsCart {
		if err := o.carts.Delete(ctx, userID); err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}
	}
	log.Info().Str("user_id", userID).Bool("cart_cleared", o.resetClearsCart).Msg("conversation memory cleared")
	return nil
}
