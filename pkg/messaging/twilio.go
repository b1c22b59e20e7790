package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioTrialLimitCode is returned when a trial account exceeds its daily
// message quota.
const TwilioTrialLimitCode = 63038

type TwilioConfig struct {
	AccountSID        string `envconfig:"ACCOUNT_SID" split_words:"true"`
	AuthToken         string `envconfig:"AUTH_TOKEN" split_words:"true"`
	WhatsAppNumber    string `envconfig:"WHATSAPP_NUMBER" split_words:"true"`
	ValidateSignature bool   `envconfig:"VALIDATE_SIGNATURE" split_words:"true" default:"false"`
	WebhookURL        string `envconfig:"WEBHOOK_URL" split_words:"true"`
}

func (c TwilioConfig) configured() bool {
	return strings.TrimSpace(c.AccountSID) != "" &&
		strings.TrimSpace(c.AuthToken) != "" &&
		strings.TrimSpace(c.WhatsAppNumber) != ""
}

// IsTwilioTrialLimit reports whether err is Twilio's trial quota error.
func IsTwilioTrialLimit(err error) bool {
	var restErr *twilioclient.TwilioRestError
	return errors.As(err, &restErr) && restErr.Code == TwilioTrialLimitCode
}

type twilioMessageCreator interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

type TwilioSender struct {
	from     string
	messages twilioMessageCreator
}

func NewTwilioSender(cfg TwilioConfig, opts ...Option) (*TwilioSender, error) {
	return newTwilioSender(cfg, buildOptions(0, opts))
}

func newTwilioSender(cfg TwilioConfig, o options) (*TwilioSender, error) {
	if !cfg.configured() {
		return nil, fmt.Errorf("%w: twilio account sid, auth token and whatsapp number are required", ErrNotConfigured)
	}
	sid := strings.TrimSpace(cfg.AccountSID)
	token := strings.TrimSpace(cfg.AuthToken)

	base := &twilioclient.Client{
		Credentials: twilioclient.NewCredentials(sid, token),
		HTTPClient:  o.httpClient,
	}
	base.SetAccountSid(sid)

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: sid,
		Password: token,
		Client:   base,
	})
	return &TwilioSender{
		from:     strings.TrimSpace(cfg.WhatsAppNumber),
		messages: rest.Api,
	}, nil
}

func (s *TwilioSender) Provider() string { return ProviderTwilio }

// Send creates one message. The SDK call takes no context, so ctx is only
// checked before the request; the HTTP client timeout bounds the call.
func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetFrom(s.from)
	params.SetTo(to)
	params.SetBody(body)

	msg, err := s.messages.CreateMessage(params)
	if err != nil {
		if IsTwilioTrialLimit(err) {
			log.Error().Str("provider", ProviderTwilio).Str("to", to).
				Msg("twilio trial account message limit exceeded; upgrade the account to keep sending")
		}
		return fmt.Errorf("twilio create message: %w", err)
	}

	event := log.Info().Str("provider", ProviderTwilio).Str("to", to)
	if msg != nil && msg.Sid != nil {
		event = event.Str("sid", *msg.Sid)
	}
	event.Msg("message sent")
	return nil
}

// ValidTwilioSignature checks the X-Twilio-Signature header of a webhook
// request against the public URL Twilio posted to.
func ValidTwilioSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	flat := make(map[string]string, len(params))
	for k, v := range params {
		if len(v) > 0 {
			flat[k] = v[0]
		}
	}
	validator := twilioclient.NewRequestValidator(authToken)
	return validator.Validate(fullURL, flat, signature)
}
