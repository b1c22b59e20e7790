package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// LineItem is one product entry in a cart. Price is the unit price.
type LineItem struct {
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
	Price    int    `json:"price"`
}

func (l LineItem) Subtotal() int {
	return l.Quantity * l.Price
}

// Cart keeps insertion order and at most one line per normalized item name.
type Cart struct {
	Items []LineItem
}

func NormalizeItemName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Add merges quantity into an existing line with the same normalized name or
// appends a new line. It returns the resulting line.
func (c *Cart) Add(itemName string, quantity int, price int) LineItem {
	key := NormalizeItemName(itemName)
	for i := range c.Items {
		if NormalizeItemName(c.Items[i].ItemName) == key {
			c.Items[i].Quantity += quantity
			return c.Items[i]
		}
	}
	line := LineItem{
		ItemName: strings.TrimSpace(itemName),
		Quantity: quantity,
		Price:    price,
	}
	c.Items = append(c.Items, line)
	return line
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c Cart) Total() int {
	total := 0
	for _, l := range c.Items {
		total += l.Subtotal()
	}
	return total
}

// CartStore persists carts as a JSON array of line items per user.
type CartStore struct {
	backend Backend
}

func NewCartStore(backend Backend) *CartStore {
	return &CartStore{backend: backend}
}

func cartKey(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrInvalidKey
	}
	return "cart:" + userID, nil
}

// Get returns the user's cart; a missing cart is empty, not an error.
func (s *CartStore) Get(ctx context.Context, userID string) (Cart, error) {
	key, err := cartKey(userID)
	if err != nil {
		return Cart{}, err
	}

	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Cart{}, nil
	}
	if err != nil {
		return Cart{}, err
	}

	var items []LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	return Cart{Items: items}, nil
}

func (s *CartStore) Save(ctx context.Context, userID string, cart Cart) error {
	key, err := cartKey(userID)
	if err != nil {
		return err
	}
	items := cart.Items
	if items == nil {
		items = []LineItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	return s.backend.Set(ctx, key, raw)
}

func (s *CartStore) Delete(ctx context.Context, userID string) error {
	key, err := cartKey(userID)
	if err != nil {
		return err
	}
	return s.backend.Delete(ctx, key)
}
