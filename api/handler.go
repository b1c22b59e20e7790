package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
	"github.com/tanpawarit/semilla-assistant/pkg/messaging"
)

const (
	CommandReset  = "fin"
	CommandReload = "recargar"

	ReplyReset        = "✅ Memoria de conversación borrada. Puedes empezar de cero."
	ReplyReloadOK     = "✅ Base de conocimientos recargada con éxito."
	ReplyReloadFailed = "❌ Error: No se pudo recargar la base de conocimientos."
	ReplyUnexpected   = "Lo siento, ocurrió un error inesperado. Por favor, intenta de nuevo más tarde."

	maxJobBodyBytes = 64 << 10
)

// Assistant runs conversation turns.
type Assistant interface {
	HandleMessage(ctx context.Context, userID, text string) (string, error)
	ClearMemory(ctx context.Context, userID string) error
}

type KnowledgeReloader interface {
	Reload() bool
}

// SignatureVerifier authenticates queued job deliveries.
type SignatureVerifier interface {
	Verify(signature string, body []byte, destination string) error
}

type Config struct {
	Port            int           `envconfig:"PORT" split_words:"true" default:"8000"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" split_words:"true" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"30s"`
	DispatchMode    string        `envconfig:"DISPATCH_MODE" split_words:"true" default:"inprocess"`
	JobURL          string        `envconfig:"JOB_URL" split_words:"true"`
}

// TurnJob is one inbound message waiting to be processed.
type TurnJob struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type Deps struct {
	Processor  *Processor
	Dispatcher Dispatcher
	Verifier   SignatureVerifier
	JobURL     string

	// TwilioAuthToken enables X-Twilio-Signature checks when set.
	TwilioAuthToken string
	WebhookURL      string
}

type Handler struct {
	deps Deps
}

// NewHandler builds the handler. Without a dispatcher, jobs run in-process.
func NewHandler(deps Deps) (*Handler, error) {
	if deps.Processor == nil {
		return nil, errors.New("processor is required")
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = NewInProcessDispatcher(deps.Processor, 0)
	}
	return &Handler{deps: deps}, nil
}

// Webhook accepts a Twilio form post, hands the message to the dispatcher
// and acknowledges immediately.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	if h.deps.TwilioAuthToken != "" {
		fullURL := h.deps.WebhookURL
		if fullURL == "" {
			fullURL = requestURL(r)
		}
		if !messaging.ValidTwilioSignature(h.deps.TwilioAuthToken, fullURL, r.PostForm, r.Header.Get("X-Twilio-Signature")) {
			log.Warn().Str("remote", r.RemoteAddr).Msg("rejected webhook with invalid twilio signature")
			respondError(w, http.StatusForbidden, "invalid signature")
			return
		}
	}

	from := strings.TrimSpace(r.PostForm.Get("From"))
	body := r.PostForm.Get("Body")
	if from == "" {
		respondError(w, http.StatusBadRequest, "From is required")
		return
	}
	if strings.TrimSpace(body) == "" {
		log.Debug().Str("user_id", from).Msg("ignoring empty message")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	log.Info().Str("user_id", from).Str("body", body).Msg("message received")
	if err := h.deps.Dispatcher.Dispatch(r.Context(), TurnJob{UserID: from, Text: body}); err != nil {
		log.Error().Err(err).Str("user_id", from).Msg("failed to dispatch message")
	}
	w.WriteHeader(http.StatusNoContent)
}

// Job processes a queued job delivered by QStash.
func (h *Handler) Job(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxJobBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if h.deps.Verifier == nil {
		respondError(w, http.StatusNotFound, "job delivery is disabled")
		return
	}
	destination := h.deps.JobURL
	if destination == "" {
		destination = requestURL(r)
	}
	if err := h.deps.Verifier.Verify(r.Header.Get("Upstash-Signature"), raw, destination); err != nil {
		log.Warn().Err(err).Msg("rejected job with invalid signature")
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var job TurnJob
	if err := json.Unmarshal(raw, &job); err != nil || strings.TrimSpace(job.UserID) == "" {
		respondError(w, http.StatusBadRequest, "invalid job payload")
		return
	}

	h.deps.Processor.Process(r.Context(), job)
	respondJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// Processor answers jobs: reserved commands are handled here, everything
// else is a conversation turn. The reply is sent through the notifier.
type Processor struct {
	assistant Assistant
	knowledge KnowledgeReloader
	notifier  contractx.Notifier
}

func NewProcessor(assistant Assistant, knowledge KnowledgeReloader, notifier contractx.Notifier) *Processor {
	return &Processor{assistant: assistant, knowledge: knowledge, notifier: notifier}
}

// Process runs one job to completion and sends the reply to the user. It
// never fails: every error becomes a user-facing text.
func (p *Processor) Process(ctx context.Context, job TurnJob) {
	reply := p.reply(ctx, job)
	if reply == "" {
		return
	}
	if p.notifier == nil || !p.notifier.Notify(ctx, job.UserID, reply) {
		log.Warn().Str("user_id", job.UserID).Msg("reply was not delivered")
	}
}

func (p *Processor) reply(ctx context.Context, job TurnJob) (reply string) {
	logger := log.With().Str("user_id", job.UserID).Logger()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("recovered while processing message")
			reply = ReplyUnexpected
		}
	}()

	switch strings.ToLower(strings.TrimSpace(job.Text)) {
	case CommandReset:
		if err := p.assistant.ClearMemory(ctx, job.UserID); err != nil {
			logger.Error().Err(err).Msg("failed to clear memory")
			return ReplyUnexpected
		}
		return ReplyReset
	case CommandReload:
		logger.Info().Msg("knowledge base reload requested")
		if p.knowledge != nil && p.knowledge.Reload() {
			return ReplyReloadOK
		}
		return ReplyReloadFailed
	}

	out, err := p.assistant.HandleMessage(ctx, job.UserID, job.Text)
	if err != nil {
		logger.Error().Err(err).Msg("turn failed")
		if strings.TrimSpace(out) == "" {
			return ReplyUnexpected
		}
	}
	return out
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
