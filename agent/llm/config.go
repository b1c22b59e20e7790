package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
	openrouterx "github.com/tanpawarit/semilla-assistant/pkg/openrouter"
)

// Config is the LLM_ section shared by the policy model and the embedder.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"1000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	EmbeddingModel   string `envconfig:"EMBEDDING_MODEL" split_words:"true" default:"text-embedding-3-small"`
	EmbeddingBaseURL string `envconfig:"EMBEDDING_BASE_URL" split_words:"true"`
	EmbeddingAPIKey  string `envconfig:"EMBEDDING_API_KEY" split_words:"true"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: policy model is required", contractx.ErrValidation)
	}
	if c.Temperature < 0 {
		return fmt.Errorf("%w: temperature must not be negative", contractx.ErrValidation)
	}
	return nil
}

// Policy returns the chat model settings for the decision policy.
func (c Config) Policy() openrouterx.Config {
	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              strings.TrimSpace(c.Model),
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        c.Temperature,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

// NewChatModel builds the tool-calling chat model the policy decides with.
func (c Config) NewChatModel(ctx context.Context) (einomodel.ToolCallingChatModel, error) {
	policy := c.Policy()
	return policy.New(ctx)
}

// Embedding returns client settings for the embeddings endpoint, falling back
// to the policy endpoint and key when no dedicated ones are set.
func (c Config) Embedding() openrouterx.Config {
	cfg := c.Policy()
	cfg.Model = strings.TrimSpace(c.EmbeddingModel)
	if v := strings.TrimSpace(c.EmbeddingBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(c.EmbeddingAPIKey); v != "" {
		cfg.APIKey = v
	}
	return cfg
}

func (c Config) NewEmbedder() (*openrouterx.Embedder, error) {
	cfg := c.Embedding()
	return openrouterx.NewEmbedder(cfg, cfg.Model)
}
