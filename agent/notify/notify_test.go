package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tanpawarit/semilla-assistant/pkg/messaging"
)

type fakeSender struct {
	err   error
	calls int
}

func (f *fakeSender) Provider() string { return "fake" }

func (f *fakeSender) Send(context.Context, string, string) error {
	f.calls++
	return f.err
}

func TestNotifyOutcomes(t *testing.T) {
	t.Parallel()

	ok := &fakeSender{}
	if !New(ok, nil).Notify(context.Background(), "to", "body") {
		t.Fatal("expected delivery")
	}

	failing := &fakeSender{err: errors.New("boom")}
	if New(failing, nil).Notify(context.Background(), "to", "body") {
		t.Fatal("failed send must report false")
	}

	disabled := &fakeSender{err: fmt.Errorf("%w: twilio", messaging.ErrNotConfigured)}
	if New(disabled, nil).Notify(context.Background(), "to", "body") {
		t.Fatal("disabled provider must report false")
	}

	empty := &fakeSender{}
	if New(empty, nil).Notify(context.Background(), " ", "body") || empty.calls != 0 {
		t.Fatal("empty recipient must not reach the provider")
	}

	if New(nil, nil).Notify(context.Background(), "to", "body") {
		t.Fatal("nil sender must report false")
	}
}
