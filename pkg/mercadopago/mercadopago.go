// Package mercadopago creates hosted checkout links through MercadoPago
// preferences.
package mercadopago

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
)

var (
	ErrNotConfigured = errors.New("mercadopago access token is not configured")
	ErrNoLink        = errors.New("mercadopago returned no payment link")
)

type Config struct {
	AccessToken     string        `envconfig:"ACCESS_TOKEN" split_words:"true"`
	CurrencyID      string        `envconfig:"CURRENCY_ID" split_words:"true" default:"ARS"`
	BackURLSuccess  string        `envconfig:"BACK_URL_SUCCESS" split_words:"true"`
	BackURLFailure  string        `envconfig:"BACK_URL_FAILURE" split_words:"true"`
	BackURLPending  string        `envconfig:"BACK_URL_PENDING" split_words:"true"`
	Sandbox         bool          `envconfig:"SANDBOX" split_words:"true" default:"false"`
	Timeout         time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
	ExternalRefBase string        `envconfig:"EXTERNAL_REF_PREFIX" split_words:"true" default:"pedido"`
}

func (c Config) Configured() bool {
	return strings.TrimSpace(c.AccessToken) != ""
}

type preferenceCreator interface {
	Create(ctx context.Context, request preference.Request) (*preference.Response, error)
}

// Linker implements contractx.PaymentLinker. A Linker built without an
// access token fails every call with ErrNotConfigured.
type Linker struct {
	cfg    Config
	client preferenceCreator
	newRef func(payerRef string) string
}

var _ contractx.PaymentLinker = (*Linker)(nil)

type Option func(*linkerOptions)

type linkerOptions struct {
	httpClient *http.Client
}

// WithHTTPClient replaces the HTTP client used by the SDK.
func WithHTTPClient(client *http.Client) Option {
	return func(o *linkerOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func New(cfg Config, opts ...Option) (*Linker, error) {
	l := &Linker{cfg: cfg}
	l.newRef = l.externalReference
	if !cfg.Configured() {
		return l, ErrNotConfigured
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	o := linkerOptions{httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(&o)
	}

	sdkCfg, err := config.New(strings.TrimSpace(cfg.AccessToken), config.WithHTTPClient(o.httpClient))
	if err != nil {
		return nil, fmt.Errorf("mercadopago: build sdk config: %w", err)
	}
	l.client = preference.NewClient(sdkCfg)
	log.Info().Bool("sandbox", cfg.Sandbox).Msg("mercadopago client initialised")
	return l, nil
}

// CreatePaymentLink creates a preference for items and returns its checkout
// URL. payerRef is the user identity; it names the payer and seeds the
// external reference.
func (l *Linker) CreatePaymentLink(ctx context.Context, items []contractx.PaymentItem, payerRef string) (string, error) {
	if l == nil || l.client == nil {
		return "", ErrNotConfigured
	}
	if len(items) == 0 {
		return "", fmt.Errorf("%w: no items to charge", contractx.ErrValidation)
	}

	req := l.buildRequest(items, payerRef)
	logger := log.With().Str("user_id", payerRef).Str("external_reference", req.ExternalReference).Logger()
	logger.Info().Int("items", len(items)).Msg("creating payment preference")

	resp, err := l.client.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mercadopago: create preference: %w", err)
	}

	link := resp.InitPoint
	if l.cfg.Sandbox && resp.SandboxInitPoint != "" {
		link = resp.SandboxInitPoint
	}
	if strings.TrimSpace(link) == "" {
		return "", ErrNoLink
	}

	logger.Info().Str("preference_id", resp.ID).Msg("payment link created")
	return link, nil
}

func (l *Linker) buildRequest(items []contractx.PaymentItem, payerRef string) preference.Request {
	currency := strings.TrimSpace(l.cfg.CurrencyID)

	reqItems := make([]preference.ItemRequest, 0, len(items))
	for _, item := range items {
		reqItems = append(reqItems, preference.ItemRequest{
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  float64(item.UnitPrice),
			CurrencyID: currency,
		})
	}

	req := preference.Request{
		Items:             reqItems,
		Payer:             &preference.PayerRequest{Name: payerRef},
		ExternalReference: l.newRef(payerRef),
	}

	if success := strings.TrimSpace(l.cfg.BackURLSuccess); success != "" {
		req.BackURLs = &preference.BackURLsRequest{
			Success: success,
			Failure: strings.TrimSpace(l.cfg.BackURLFailure),
			Pending: strings.TrimSpace(l.cfg.BackURLPending),
		}
		req.AutoReturn = "approved"
	}
	return req
}

func (l *Linker) externalReference(payerRef string) string {
	prefix := strings.TrimSpace(l.cfg.ExternalRefBase)
	if prefix == "" {
		prefix = "pedido"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s", prefix, payerRef, suffix)
}
