package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
	"github.com/tanpawarit/semilla-assistant/agent/knowledge"
	"github.com/tanpawarit/semilla-assistant/agent/state"
	metricsx "github.com/tanpawarit/semilla-assistant/pkg/metrics"
)

// KnowledgeTopK is the number of passages fetched per knowledge lookup.
const KnowledgeTopK = 3

const (
	msgKnowledgeEmpty    = "No encontré información relevante sobre eso en mi base de conocimientos."
	msgKnowledgeError    = "Ocurrió un error al consultar la base de conocimientos."
	msgKnowledgeContext  = "Contexto encontrado para la pregunta '%s':\n%s"
	msgProductNotFound   = "Lo siento, no encontré el producto '%s'. ¿Podrías verificar el nombre e intentarlo de nuevo?"
	msgInvalidQuantity   = "La cantidad debe ser un número entero mayor que cero. ¿Cuántas unidades de '%s' quieres?"
	msgItemMerged        = "%d x %s más añadido(s). Ahora tienes %d en total."
	msgItemAdded         = "%d x %s ha(n) sido añadido(s) a tu carrito."
	msgCartError         = "No pude acceder a tu carrito en este momento. Por favor, intenta de nuevo."
	msgCartEmpty         = "Tu carrito está vacío."
	msgCheckoutEmpty     = "Tu carrito está vacío. No puedes finalizar un pedido sin productos."
	msgCheckoutReady     = "Tu pedido está listo. Aquí tienes tu enlace de pago: %s"
	msgCheckoutFailed    = "Tuvimos un problema al generar tu enlace de pago. Por favor, intenta de nuevo."
	msgHandoffDone       = "He notificado a uno de nuestros agentes para que se ponga en contacto contigo. Te atenderán pronto."
	msgHandoffNoContact  = "Me gustaría pasarte con un humano, pero no tengo a quién contactar. Disculpa las molestias."
	msgHandoffNotice     = "Atención: Cliente %s necesita ayuda. Motivo: '%s'"
	knowledgeSeparator   = "\n\n---\n\n"
	missingActionMessage = "No pude ejecutar esa acción."
)

// PriceLookup resolves a product name or alias to its unit price, returning
// catalog.PriceNotFound for unknown names.
type PriceLookup interface {
	Lookup(name string) int
}

type CartStore interface {
	Get(ctx context.Context, userID string) (state.Cart, error)
	Save(ctx context.Context, userID string, cart state.Cart) error
	Delete(ctx context.Context, userID string) error
}

// OrderRecorder keeps a ledger of generated payment links.
type OrderRecorder interface {
	RecordOrder(ctx context.Context, userID, paymentURL string, items []contractx.PaymentItem) error
}

type Deps struct {
	Carts        CartStore
	Prices       PriceLookup
	Knowledge    contractx.Retriever
	Payments     contractx.PaymentLinker
	Notifier     contractx.Notifier
	Orders       OrderRecorder
	Metrics      *metricsx.Metrics
	HumanContact string
}

// Executor runs decoded actions against the cart, catalog, knowledge base,
// payment gateway and notifier. Every outcome is returned as user-facing text.
type Executor struct {
	deps Deps
}

var _ contractx.ActionExecutor = (*Executor)(nil)

func NewExecutor(deps Deps) *Executor {
	deps.HumanContact = strings.TrimSpace(deps.HumanContact)
	return &Executor{deps: deps}
}

func (e *Executor) Execute(ctx context.Context, userID string, action contractx.Action) string {
	var (
		result  string
		outcome = metricsx.OutcomeOK
	)

	switch a := action.(type) {
	case contractx.KnowledgeLookup:
		result, outcome = e.knowledgeLookup(ctx, a)
	case contractx.AddToCart:
		result, outcome = e.addToCart(ctx, userID, a)
	case contractx.ViewCart:
		result, outcome = e.viewCart(ctx, userID)
	case contractx.Checkout:
		result, outcome = e.checkout(ctx, userID)
	case contractx.TalkToHuman:
		result, outcome = e.talkToHuman(ctx, userID, a)
	default:
		log.Error().Str("user_id", userID).Msgf("no handler for action %T", action)
		return missingActionMessage
	}

	e.deps.Metrics.ObserveAction(string(action.ActionName()), outcome)
	return result
}

func (e *Executor) knowledgeLookup(ctx context.Context, a contractx.KnowledgeLookup) (string, string) {
	log.Info().Str("action", string(a.ActionName())).Str("query", a.Query).Msg("running knowledge lookup")
	if e.deps.Knowledge == nil {
		log.Warn().Msg("knowledge retriever is not configured")
		return msgKnowledgeEmpty, metricsx.OutcomeSkipped
	}

	passages, err := e.deps.Knowledge.Retrieve(ctx, a.Query, KnowledgeTopK)
	if errors.Is(err, knowledge.ErrNotReady) {
		log.Warn().Str("query", a.Query).Msg("knowledge index is not loaded")
		return msgKnowledgeEmpty, metricsx.OutcomeSkipped
	}
	if err != nil {
		log.Error().Err(err).Str("query", a.Query).Msg("knowledge lookup failed")
		return msgKnowledgeError, metricsx.OutcomeFailed
	}

	joined := strings.Join(passages, knowledgeSeparator)
	if strings.TrimSpace(joined) == "" {
		return msgKnowledgeEmpty, metricsx.OutcomeOK
	}
	return fmt.Sprintf(msgKnowledgeContext, a.Query, joined), metricsx.OutcomeOK
}

func (e *Executor) addToCart(ctx context.Context, userID string, a contractx.AddToCart) (string, string) {
	itemName := strings.TrimSpace(a.ItemName)
	logger := log.With().Str("user_id", userID).Str("item", itemName).Int("quantity", a.Quantity).Logger()
	logger.Info().Msg("adding item to cart")

	if a.Quantity <= 0 {
		return fmt.Sprintf(msgInvalidQuantity, itemName), metricsx.OutcomeSkipped
	}

	price := 0
	if e.deps.Prices != nil {
		price = e.deps.Prices.Lookup(itemName)
	}
	if price <= 0 {
		return fmt.Sprintf(msgProductNotFound, itemName), metricsx.OutcomeSkipped
	}

	cart, err := e.deps.Carts.Get(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read cart")
		return msgCartError, metricsx.OutcomeFailed
	}

	before := len(cart.Items)
	line := cart.Add(itemName, a.Quantity, price)
	if err := e.deps.Carts.Save(ctx, userID, cart); err != nil {
		logger.Error().Err(err).Msg("failed to save cart")
		return msgCartError, metricsx.OutcomeFailed
	}

	if len(cart.Items) == before {
		return fmt.Sprintf(msgItemMerged, a.Quantity, itemName, line.Quantity), metricsx.OutcomeOK
	}
	return fmt.Sprintf(msgItemAdded, a.Quantity, itemName), metricsx.OutcomeOK
}

func (e *Executor) viewCart(ctx context.Context, userID string) (string, string) {
	log.Info().Str("user_id", userID).Msg("showing cart")

	cart, err := e.deps.Carts.Get(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to read cart")
		return msgCartError, metricsx.OutcomeFailed
	}
	return FormatCart(cart), metricsx.OutcomeOK
}

// FormatCart renders the cart listing shown to the user.
func FormatCart(cart state.Cart) string {
	if cart.IsEmpty() {
		return msgCartEmpty
	}

	var b strings.Builder
	b.WriteString("Este es tu carrito:")
	for _, item := range cart.Items {
		fmt.Fprintf(&b, "\n- %d x %s: $%d", item.Quantity, item.ItemName, item.Subtotal())
	}
	fmt.Fprintf(&b, "\n\nTotal: $%d", cart.Total())
	return b.String()
}

func (e *Executor) checkout(ctx context.Context, userID string) (string, string) {
	logger := log.With().Str("user_id", userID).Logger()
	logger.Info().Msg("starting checkout")

	cart, err := e.deps.Carts.Get(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read cart")
		return msgCartError, metricsx.OutcomeFailed
	}
	if cart.IsEmpty() {
		return msgCheckoutEmpty, metricsx.OutcomeSkipped
	}

	items := make([]contractx.PaymentItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, contractx.PaymentItem{
			Title:     item.ItemName,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}

	if e.deps.Payments == nil {
		logger.Error().Msg("payment linker is not configured")
		return msgCheckoutFailed, metricsx.OutcomeFailed
	}
	link, err := e.deps.Payments.CreatePaymentLink(ctx, items, userID)
	if err != nil || strings.TrimSpace(link) == "" {
		logger.Error().Err(err).Msg("failed to create payment link")
		return msgCheckoutFailed, metricsx.OutcomeFailed
	}

	if err := e.deps.Carts.Delete(ctx, userID); err != nil {
		logger.Error().Err(err).Msg("payment link created but cart could not be cleared")
	}
	if e.deps.Orders != nil {
		if err := e.deps.Orders.RecordOrder(ctx, userID, link, items); err != nil {
			logger.Error().Err(err).Msg("failed to record order")
		}
	}

	return fmt.Sprintf(msgCheckoutReady, link), metricsx.OutcomeOK
}

func (e *Executor) talkToHuman(ctx context.Context, userID string, a contractx.TalkToHuman) (string, string) {
	log.Info().Str("user_id", userID).Str("reason", a.Reason).Msg("user asked for a human")

	if e.deps.HumanContact == "" {
		log.Warn().Msg("human contact is not configured")
		return msgHandoffNoContact, metricsx.OutcomeSkipped
	}

	outcome := metricsx.OutcomeOK
	if e.deps.Notifier == nil || !e.deps.Notifier.Notify(ctx, e.deps.HumanContact, fmt.Sprintf(msgHandoffNotice, userID, a.Reason)) {
		log.Warn().Str("user_id", userID).Msg("handoff notification was not delivered")
		outcome = metricsx.OutcomeFailed
	}
	return msgHandoffDone, outcome
}
