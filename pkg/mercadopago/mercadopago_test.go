package mercadopago

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
)

type fakeCreator struct {
	got  preference.Request
	resp *preference.Response
	err  error
}

func (f *fakeCreator) Create(_ context.Context, req preference.Request) (*preference.Response, error) {
	f.got = req
	return f.resp, f.err
}

func newTestLinker(cfg Config, creator *fakeCreator) *Linker {
	l := &Linker{cfg: cfg, client: creator}
	l.newRef = l.externalReference
	return l
}

var items = []contractx.PaymentItem{
	{Title: "Café", Quantity: 2, UnitPrice: 50},
	{Title: "Brownie", Quantity: 1, UnitPrice: 45},
}

func TestNewWithoutTokenIsDisabled(t *testing.T) {
	t.Parallel()

	l, err := New(Config{})
	require.ErrorIs(t, err, ErrNotConfigured)
	require.NotNil(t, l)

	_, err = l.CreatePaymentLink(context.Background(), items, "u1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCreatePaymentLinkBuildsPreference(t *testing.T) {
	t.Parallel()

	creator := &fakeCreator{resp: &preference.Response{ID: "pref-1", InitPoint: "https://mp/checkout/1"}}
	l := newTestLinker(Config{CurrencyID: "ARS", ExternalRefBase: "pedido"}, creator)

	link, err := l.CreatePaymentLink(context.Background(), items, "whatsapp:+549")
	require.NoError(t, err)
	assert.Equal(t, "https://mp/checkout/1", link)

	req := creator.got
	require.Len(t, req.Items, 2)
	total := 0.0
	for _, it := range req.Items {
		total += float64(it.Quantity) * it.UnitPrice
		assert.Equal(t, "ARS", it.CurrencyID)
	}
	assert.Equal(t, 145.0, total)
	require.NotNil(t, req.Payer)
	assert.Equal(t, "whatsapp:+549", req.Payer.Name)
	assert.Regexp(t, regexp.MustCompile(`^pedido_whatsapp:\+549_[0-9a-f]{8}$`), req.ExternalReference)
	assert.Nil(t, req.BackURLs)
	assert.Empty(t, req.AutoReturn)
}

func TestCreatePaymentLinkBackURLsAndSandbox(t *testing.T) {
	t.Parallel()

	creator := &fakeCreator{resp: &preference.Response{InitPoint: "https://mp/live", SandboxInitPoint: "https://mp/sandbox"}}
	l := newTestLinker(Config{Sandbox: true, BackURLSuccess: "https://cafe/ok"}, creator)

	link, err := l.CreatePaymentLink(context.Background(), items, "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://mp/sandbox", link)
	require.NotNil(t, creator.got.BackURLs)
	assert.Equal(t, "https://cafe/ok", creator.got.BackURLs.Success)
	assert.Equal(t, "approved", creator.got.AutoReturn)
}

func TestCreatePaymentLinkFailures(t *testing.T) {
	t.Parallel()

	l := newTestLinker(Config{}, &fakeCreator{err: errors.New("401")})
	_, err := l.CreatePaymentLink(context.Background(), items, "u1")
	assert.Error(t, err)

	l = newTestLinker(Config{}, &fakeCreator{resp: &preference.Response{}})
	_, err = l.CreatePaymentLink(context.Background(), items, "u1")
	assert.ErrorIs(t, err, ErrNoLink)
}
