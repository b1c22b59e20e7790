package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 2 << 20

// UpstashOption customizes UpstashBackend.
type UpstashOption func(*UpstashBackend)

func WithKeyPrefix(prefix string) UpstashOption {
	return func(s *UpstashBackend) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) UpstashOption {
	return func(s *UpstashBackend) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) UpstashOption {
	return func(s *UpstashBackend) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashBackend talks to Upstash Redis over its REST API.
type UpstashBackend struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func NewUpstashBackend(cfg UpstashRedisConfig, opts ...UpstashOption) (*UpstashBackend, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	backend := &UpstashBackend{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		ttl: defaultStoreTTL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(backend)
		}
	}

	if backend.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}

	return backend, nil
}

func (s *UpstashBackend) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := s.redisKey(key)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"GET", k})
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrNotFound
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode value payload: %w", err)
	}
	return []byte(encoded), nil
}

func (s *UpstashBackend) Set(ctx context.Context, key string, value []byte) error {
	k, err := s.redisKey(key)
	if err != nil {
		return err
	}

	cmd := []any{"SET", k, string(value)}
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}

	_, err = s.exec(ctx, cmd)
	return err
}

func (s *UpstashBackend) Delete(ctx context.Context, key string) error {
	k, err := s.redisKey(key)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"DEL", k})
	return err
}

// Append pushes values to the tail of the list at key and refreshes its TTL
// in one pipelined request.
func (s *UpstashBackend) Append(ctx context.Context, key string, values ...[]byte) error {
	if len(values) == 0 {
		return nil
	}
	k, err := s.redisKey(key)
	if err != nil {
		return err
	}

	push := make([]any, 0, len(values)+2)
	push = append(push, "RPUSH", k)
	for _, v := range values {
		push = append(push, string(v))
	}

	commands := [][]any{push}
	if s.ttl > 0 {
		commands = append(commands, []any{"EXPIRE", k, ttlSeconds(s.ttl)})
	}
	return s.pipeline(ctx, commands)
}

func (s *UpstashBackend) Range(ctx context.Context, key string) ([][]byte, error) {
	k, err := s.redisKey(key)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"LRANGE", k, 0, -1})
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, nil
	}

	var items []string
	if err := json.Unmarshal(result, &items); err != nil {
		return nil, fmt.Errorf("decode list payload: %w", err)
	}
	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = []byte(item)
	}
	return out, nil
}

func (s *UpstashBackend) redisKey(key string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	return strings.TrimSpace(s.keyPrefix) + key, nil
}

func (s *UpstashBackend) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	raw, err := s.post(ctx, s.baseURL, command)
	if err != nil {
		return nil, err
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func (s *UpstashBackend) pipeline(ctx context.Context, commands [][]any) error {
	raw, err := s.post(ctx, s.baseURL+"/pipeline", commands)
	if err != nil {
		return err
	}

	var parsed []redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("decode redis pipeline response: %w", err)
	}
	for i, r := range parsed {
		if r.Error != "" {
			return fmt.Errorf("redis pipeline command %d: %s", i, r.Error)
		}
	}
	return nil
}

func (s *UpstashBackend) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if strings.TrimSpace(s.token) == "" {
		return nil, errors.New("empty redis token")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
