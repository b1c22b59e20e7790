package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
)

var _ contractx.HistoryStore = (*HistoryStore)(nil)

// HistoryStore persists each user's conversation as a list of JSON messages.
type HistoryStore struct {
	backend Backend
}

func NewHistoryStore(backend Backend) *HistoryStore {
	return &HistoryStore{backend: backend}
}

func historyKey(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrInvalidKey
	}
	return "conversation:" + userID, nil
}

func (h *HistoryStore) Append(ctx context.Context, userID string, msgs ...contractx.Message) error {
	key, err := historyKey(userID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	values := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal %s message: %w", m.Role, err)
		}
		values = append(values, raw)
	}
	return h.backend.Append(ctx, key, values...)
}

func (h *HistoryStore) List(ctx context.Context, userID string) ([]contractx.Message, error) {
	key, err := historyKey(userID)
	if err != nil {
		return nil, err
	}

	items, err := h.backend.Range(ctx, key)
	if err != nil {
		return nil, err
	}

	msgs := make([]contractx.Message, 0, len(items))
	for i, raw := range items {
		var m contractx.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode history entry %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (h *HistoryStore) Delete(ctx context.Context, userID string) error {
	key, err := historyKey(userID)
	if err != nil {
		return err
	}
	return h.backend.Delete(ctx, key)
}
