// Package notify adapts a messaging.Sender to the agent's Notifier contract:
// delivery problems are logged and counted, never returned.
package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
	"github.com/tanpawarit/semilla-assistant/pkg/messaging"
	metricsx "github.com/tanpawarit/semilla-assistant/pkg/metrics"
)

type Notifier struct {
	sender  messaging.Sender
	metrics *metricsx.Metrics
}

var _ contractx.Notifier = (*Notifier)(nil)

func New(sender messaging.Sender, metrics *metricsx.Metrics) *Notifier {
	return &Notifier{sender: sender, metrics: metrics}
}

// Notify reports whether the message was handed to the provider.
func (n *Notifier) Notify(ctx context.Context, to string, body string) bool {
	provider := "none"
	if n.sender != nil {
		provider = n.sender.Provider()
	}
	logger := log.With().Str("provider", provider).Str("to", to).Logger()

	if n.sender == nil {
		logger.Warn().Msg("no messaging sender; message dropped")
		n.metrics.ObserveMessage(provider, metricsx.OutcomeSkipped)
		return false
	}
	if strings.TrimSpace(to) == "" || strings.TrimSpace(body) == "" {
		logger.Warn().Msg("empty recipient or body; message dropped")
		n.metrics.ObserveMessage(provider, metricsx.OutcomeSkipped)
		return false
	}

	if err := n.sender.Send(ctx, to, body); err != nil {
		if errors.Is(err, messaging.ErrNotConfigured) {
			logger.Warn().Err(err).Msg("messaging disabled; message dropped")
			n.metrics.ObserveMessage(provider, metricsx.OutcomeSkipped)
			return false
		}
		logger.Error().Err(err).Msg("failed to send message")
		n.metrics.ObserveMessage(provider, metricsx.OutcomeFailed)
		return false
	}

	n.metrics.ObserveMessage(provider, metricsx.OutcomeOK)
	return true
}
