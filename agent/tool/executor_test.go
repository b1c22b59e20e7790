package tool

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tanpawarit/semilla-assistant/agent/catalog"
	"github.com/tanpawarit/semilla-assistant/agent/knowledge"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
	"github.com/tanpawarit/semilla-assistant/agent/state"
)

type fakeRetriever struct {
	passages []string
	err      error
	gotK     int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, k int) ([]string, error) {
	f.gotK = k
	return f.passages, f.err
}

type fakePayments struct {
	link  string
	err   error
	calls int
	items []contractx.PaymentItem
	payer string
}

func (f *fakePayments) CreatePaymentLink(_ context.Context, items []contractx.PaymentItem, payerRef string) (string, error) {
	f.calls++
	f.items = items
	f.payer = payerRef
	return f.link, f.err
}

type fakeNotifier struct {
	to, body string
	ok       bool
}

func (f *fakeNotifier) Notify(_ context.Context, to, body string) bool {
	f.to, f.body = to, body
	return f.ok
}

type fakeOrders struct {
	links []string
}

func (f *fakeOrders) RecordOrder(_ context.Context, _ string, paymentURL string, _ []contractx.PaymentItem) error {
	f.links = append(f.links, paymentURL)
	return nil
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Product{
		{Name: "Café", Aliases: []string{"cafe", "cafecito"}, Price: 50},
		{Name: "Brownie", Price: 45},
	})
}

func newTestExecutor(deps Deps) (*Executor, *state.CartStore) {
	carts := state.NewCartStore(state.NewMemoryBackend(time.Hour))
	deps.Carts = carts
	if deps.Prices == nil {
		deps.Prices = testCatalog()
	}
	return NewExecutor(deps), carts
}

func TestToolInfosCoverEveryAction(t *testing.T) {
	t.Parallel()

	infos := ToolInfos()
	if len(infos) != len(contractx.ActionNames) {
		t.Fatalf("expected %d tool infos, got %d", len(contractx.ActionNames), len(infos))
	}
	for i, name := range contractx.ActionNames {
		if infos[i] == nil || infos[i].Name != string(name) {
			t.Fatalf("tool %d: expected %s, got %+v", i, name, infos[i])
		}
	}
}

func TestAddToCartMergesAndViewCartTotals(t *testing.T) {
	t.Parallel()

	exec, carts := newTestExecutor(Deps{})
	ctx := context.Background()

	out := exec.Execute(ctx, "u1", contractx.AddToCart{ItemName: "Cafe", Quantity: 2})
	if out != "2 x Cafe ha(n) sido añadido(s) a tu carrito." {
		t.Fatalf("unexpected add result: %q", out)
	}
	out = exec.Execute(ctx, "u1", contractx.AddToCart{ItemName: " cafe ", Quantity: 1})
	if out != "1 x cafe más añadido(s). Ahora tienes 3 en total." {
		t.Fatalf("unexpected merge result: %q", out)
	}
	exec.Execute(ctx, "u1", contractx.AddToCart{ItemName: "brownie", Quantity: 1})

	cart, err := carts.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected 2 lines, got %+v", cart.Items)
	}

	out = exec.Execute(ctx, "u1", contractx.ViewCart{})
	want := "Este es tu carrito:\n- 3 x Cafe: $150\n- 1 x brownie: $45\n\nTotal: $195"
	if out != want {
		t.Fatalf("unexpected cart view:\n%q\nwant\n%q", out, want)
	}
}

func TestAddToCartRejectsUnknownAndNonPositive(t *testing.T) {
	t.Parallel()

	exec, carts := newTestExecutor(Deps{})
	ctx := context.Background()

	out := exec.Execute(ctx, "u1", contractx.AddToCart{ItemName: "pizza", Quantity: 1})
	if !strings.Contains(out, "no encontré el producto 'pizza'") {
		t.Fatalf("unexpected result: %q", out)
	}
	out = exec.Execute(ctx, "u1", contractx.AddToCart{ItemName: "cafe", Quantity: 0})
	if !strings.Contains(out, "mayor que cero") {
		t.Fatalf("unexpected result: %q", out)
	}

	cart, _ := carts.Get(ctx, "u1")
	if !cart.IsEmpty() {
		t.Fatalf("cart must stay empty, got %+v", cart.Items)
	}
}

func TestViewCartEmpty(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(Deps{})
	if out := exec.Execute(context.Background(), "u1", contractx.ViewCart{}); out != "Tu carrito está vacío." {
		t.Fatalf("unexpected result: %q", out)
	}
}

func TestCheckoutEmptyNeverCallsPayments(t *testing.T) {
	t.Parallel()

	payments := &fakePayments{link: "https://pay"}
	exec, _ := newTestExecutor(Deps{Payments: payments})

	out := exec.Execute(context.Background(), "u1", contractx.Checkout{})
	if out != "Tu carrito está vacío. No puedes finalizar un pedido sin productos." {
		t.Fatalf("unexpected result: %q", out)
	}
	if payments.calls != 0 {
		t.Fatalf("payment provider called %d times", payments.calls)
	}
}

func TestCheckoutSuccessClearsCartAndRecordsOrder(t *testing.T) {
	t.Parallel()

	payments := &fakePayments{link: "https://pay.example/123"}
	orders := &fakeOrders{}
	exec, carts := newTestExecutor(Deps{Payments: payments, Orders: orders})
	ctx := context.Background()

	exec.Execute(ctx, "u1", contractx.AddToCart{ItemName: "cafe", Quantity: 2})
	exec.Execute(ctx, "u1", contractx.AddToCart{ItemName: "brownie", Quantity: 3})
	before, _ := carts.Get(ctx, "u1")

	out := exec.Execute(ctx, "u1", contractx.Checkout{})
	if out != "Tu pedido está listo. Aquí tienes tu enlace de pago: https://pay.example/123" {
		t.Fatalf("unexpected result: %q", out)
	}

	sum := 0
	for _, item := range payments.items {
		sum += item.Quantity * item.UnitPrice
	}
	if sum != before.Total() {
		t.Fatalf("payment total %d != cart total %d", sum, before.Total())
	}
	if payments.payer != "u1" {
		t.Fatalf("unexpected payer: %q", payments.payer)
	}
	if len(orders.links) != 1 {
		t.Fatalf("expected one recorded order, got %v", orders.links)
	}
	if out := exec.Execute(ctx, "u1", contractx.ViewCart{}); out != "Tu carrito está vacío." {
		t.Fatalf("cart not cleared: %q", out)
	}
}

func TestCheckoutFailureKeepsCart(t *testing.T) {
	t.Parallel()

	exec, carts := newTestExecutor(Deps{Payments: &fakePayments{err: errors.New("gateway down")}})
	ctx := context.Background()

	exec.Execute(ctx, "u1", contractx.AddToCart{ItemName: "cafe", Quantity: 1})
	out := exec.Execute(ctx, "u1", contractx.Checkout{})
	if out != "Tuvimos un problema al generar tu enlace de pago. Por favor, intenta de nuevo." {
		t.Fatalf("unexpected result: %q", out)
	}
	cart, _ := carts.Get(ctx, "u1")
	if cart.IsEmpty() {
		t.Fatal("cart must survive a failed checkout")
	}
}

func TestKnowledgeLookup(t *testing.T) {
	t.Parallel()

	retriever := &fakeRetriever{passages: []string{"Abrimos a las 8.", "Cerramos a las 20."}}
	exec, _ := newTestExecutor(Deps{Knowledge: retriever})

	out := exec.Execute(context.Background(), "u1", contractx.KnowledgeLookup{Query: "horario"})
	want := "Contexto encontrado para la pregunta 'horario':\nAbrimos a las 8.\n\n---\n\nCerramos a las 20."
	if out != want {
		t.Fatalf("unexpected result: %q", out)
	}
	if retriever.gotK != KnowledgeTopK {
		t.Fatalf("expected k=%d, got %d", KnowledgeTopK, retriever.gotK)
	}

	retriever.passages = nil
	if out := exec.Execute(context.Background(), "u1", contractx.KnowledgeLookup{Query: "x"}); out != msgKnowledgeEmpty {
		t.Fatalf("unexpected empty result: %q", out)
	}

	retriever.err = errors.New("boom")
	if out := exec.Execute(context.Background(), "u1", contractx.KnowledgeLookup{Query: "x"}); out != msgKnowledgeError {
		t.Fatalf("unexpected error result: %q", out)
	}
}

func TestKnowledgeLookupWithoutIndex(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "missing.json")
	retriever := knowledge.New(knowledge.Config{IndexPath: missing}, nil)
	if retriever.Load() {
		t.Fatal("index must not load from a missing file")
	}

	exec, _ := newTestExecutor(Deps{Knowledge: retriever})
	out := exec.Execute(context.Background(), "u1", contractx.KnowledgeLookup{Query: "horario"})
	if out != "No encontré información relevante sobre eso en mi base de conocimientos." {
		t.Fatalf("unexpected not-ready result: %q", out)
	}

	unset, _ := newTestExecutor(Deps{})
	if out := unset.Execute(context.Background(), "u1", contractx.KnowledgeLookup{Query: "horario"}); out != msgKnowledgeEmpty {
		t.Fatalf("unexpected result without retriever: %q", out)
	}
}

func TestTalkToHuman(t *testing.T) {
	t.Parallel()

	notifier := &fakeNotifier{ok: true}
	exec, _ := newTestExecutor(Deps{Notifier: notifier, HumanContact: " +5491100000000 "})

	out := exec.Execute(context.Background(), "whatsapp:+549", contractx.TalkToHuman{Reason: "reclamo"})
	if out != msgHandoffDone {
		t.Fatalf("unexpected result: %q", out)
	}
	if notifier.to != "+5491100000000" {
		t.Fatalf("unexpected recipient: %q", notifier.to)
	}
	if notifier.body != "Atención: Cliente whatsapp:+549 necesita ayuda. Motivo: 'reclamo'" {
		t.Fatalf("unexpected body: %q", notifier.body)
	}

	noContact, _ := newTestExecutor(Deps{Notifier: notifier})
	if out := noContact.Execute(context.Background(), "u1", contractx.TalkToHuman{Reason: "x"}); out != msgHandoffNoContact {
		t.Fatalf("unexpected result: %q", out)
	}
}
