package contract

import "context"

// Policy decides the next assistant message given the full history.
type Policy interface {
	Decide(ctx context.Context, history []Message) (Message, error)
}

// ActionExecutor runs one decoded action on behalf of a user.
type ActionExecutor interface {
	Execute(ctx context.Context, userID string, action Action) string
}

// HistoryStore is the per-user append-only conversation log.
type HistoryStore interface {
	Append(ctx context.Context, userID string, msgs ...Message) error
	List(ctx context.Context, userID string) ([]Message, error)
	Delete(ctx context.Context, userID string) error
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

type PaymentLinker interface {
	CreatePaymentLink(ctx context.Context, items []PaymentItem, payerRef string) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, to string, body string) bool
}

type PaymentItem struct {
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int    `json:"unit_price"`
}
