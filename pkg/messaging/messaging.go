// Package messaging delivers outbound WhatsApp text through one configured
// provider.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	ProviderTwilio = "twilio"
	ProviderMeta   = "meta"
	ProviderLog    = "log"
)

const maxResponseSizeBytes = 1 << 20

var ErrNotConfigured = errors.New("messaging provider is not configured")

// Sender delivers one text message.
type Sender interface {
	Send(ctx context.Context, to, body string) error
	Provider() string
}

type Config struct {
	Provider string        `envconfig:"PROVIDER" split_words:"true" required:"true"`
	Timeout  time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type Option func(*options)

type options struct {
	httpClient *http.Client
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func buildOptions(timeout time.Duration, opts []Option) options {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	o := options{httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New returns the sender selected by cfg.Provider. When the selected
// provider lacks credentials it returns a disabled sender together with an
// error wrapping ErrNotConfigured; an unknown provider is a plain error.
func New(cfg Config, twilio TwilioConfig, meta MetaConfig, opts ...Option) (Sender, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	o := buildOptions(cfg.Timeout, opts)

	var (
		sender Sender
		err    error
	)
	switch provider {
	case ProviderTwilio:
		sender, err = newTwilioSender(twilio, o)
	case ProviderMeta:
		sender, err = newMetaSender(meta, o)
	case ProviderLog:
		return LogSender{}, nil
	default:
		return nil, fmt.Errorf("unknown messaging provider %q", cfg.Provider)
	}

	if errors.Is(err, ErrNotConfigured) {
		return disabledSender{provider: provider}, err
	}
	if err != nil {
		return nil, err
	}
	return sender, nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct{}

func (LogSender) Provider() string { return ProviderLog }

func (LogSender) Send(_ context.Context, to, body string) error {
	log.Info().Str("provider", ProviderLog).Str("to", to).Str("body", body).Msg("outbound message")
	return nil
}

type disabledSender struct {
	provider string
}

func (d disabledSender) Provider() string { return d.provider }

func (d disabledSender) Send(context.Context, string, string) error {
	return fmt.Errorf("%w: %s", ErrNotConfigured, d.provider)
}
