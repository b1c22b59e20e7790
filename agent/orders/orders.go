// Package orders keeps a ledger of the payment links handed to users.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrDisabled = errors.New("order ledger is disabled")

type Config struct {
	Driver string `envconfig:"DRIVER" split_words:"true" default:"postgres"`
	DSN    string `envconfig:"DSN" split_words:"true"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID         string                  `bun:"id,pk"`
	UserID     string                  `bun:"user_id,notnull"`
	PaymentURL string                  `bun:"payment_url,notnull"`
	Items      []contractx.PaymentItem `bun:"items,type:jsonb"`
	Total      int                     `bun:"total,notnull"`
	CreatedAt  time.Time               `bun:"created_at,notnull"`
}

// Open connects to the configured database. An empty DSN yields ErrDisabled.
func Open(cfg Config) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, ErrDisabled
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverPostgres, "":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		return bun.NewDB(sqldb, pgdialect.New()), nil
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	default:
		return nil, fmt.Errorf("unknown orders driver %q", cfg.Driver)
	}
}

type Store struct {
	db  *bun.DB
	now func() time.Time
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Init creates the orders table when missing.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*Order)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create orders table: %w", err)
	}
	return nil
}

func (s *Store) RecordOrder(ctx context.Context, userID, paymentURL string, items []contractx.PaymentItem) error {
	total := 0
	for _, item := range items {
		total += item.Quantity * item.UnitPrice
	}

	order := &Order{
		ID:         uuid.NewString(),
		UserID:     userID,
		PaymentURL: paymentURL,
		Items:      items,
		Total:      total,
		CreatedAt:  s.now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(order).Exec(ctx); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	log.Info().Str("user_id", userID).Str("order_id", order.ID).Int("total", total).Msg("order recorded")
	return nil
}

// ListByUser returns the user's orders, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []Order
	err := s.db.NewSelect().
		Model(&out).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
