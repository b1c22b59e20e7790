package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type MetaConfig struct {
	AccessToken   string `envconfig:"ACCESS_TOKEN" split_words:"true"`
	PhoneNumberID string `envconfig:"PHONE_NUMBER_ID" split_words:"true"`
	APIVersion    string `envconfig:"API_VERSION" split_words:"true" default:"v21.0"`
	BaseURL       string `envconfig:"BASE_URL" split_words:"true" default:"https://graph.facebook.com"`
}

// MetaSender talks to the WhatsApp Cloud API.
type MetaSender struct {
	token      string
	endpoint   string
	httpClient *http.Client
}

type metaTextMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type metaErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func NewMetaSender(cfg MetaConfig, opts ...Option) (*MetaSender, error) {
	return newMetaSender(cfg, buildOptions(0, opts))
}

func newMetaSender(cfg MetaConfig, o options) (*MetaSender, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	phoneID := strings.TrimSpace(cfg.PhoneNumberID)
	if token == "" || phoneID == "" {
		return nil, fmt.Errorf("%w: meta access token and phone number id are required", ErrNotConfigured)
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://graph.facebook.com"
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = "v21.0"
	}

	return &MetaSender{
		token:      token,
		endpoint:   fmt.Sprintf("%s/%s/%s/messages", base, version, phoneID),
		httpClient: o.httpClient,
	}, nil
}

func (s *MetaSender) Provider() string { return ProviderMeta }

func (s *MetaSender) Send(ctx context.Context, to, body string) error {
	msg := metaTextMessage{
		MessagingProduct: "whatsapp",
		To:               normalizeMetaRecipient(to),
		Type:             "text",
	}
	msg.Text.Body = body

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal meta message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build meta request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute meta request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read meta response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr metaErrorResponse
		if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("meta status=%d code=%d: %s", resp.StatusCode, apiErr.Error.Code, apiErr.Error.Message)
		}
		return fmt.Errorf("meta status=%d body=%s", resp.StatusCode, string(raw))
	}

	log.Info().Str("provider", ProviderMeta).Str("to", msg.To).Msg("message sent")
	return nil
}

// normalizeMetaRecipient strips the Twilio-style "whatsapp:" prefix and the
// leading plus sign; the Cloud API expects bare digits.
func normalizeMetaRecipient(to string) string {
	to = strings.TrimSpace(to)
	to = strings.TrimPrefix(to, "whatsapp:")
	return strings.TrimPrefix(to, "+")
}
