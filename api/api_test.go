package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssistant struct {
	mu       sync.Mutex
	reply    string
	err      error
	turns    []TurnJob
	cleared  []string
	clearErr error
}

func (f *fakeAssistant) HandleMessage(_ context.Context, userID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, TurnJob{UserID: userID, Text: text})
	return f.reply, f.err
}

func (f *fakeAssistant) ClearMemory(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, userID)
	return f.clearErr
}

type fakeReloader struct{ ok bool }

func (f fakeReloader) Reload() bool { return f.ok }

type sent struct{ to, body string }

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeNotifier) Notify(_ context.Context, to, body string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{to: to, body: body})
	return true
}

func (f *fakeNotifier) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

// syncDispatcher processes jobs on the calling goroutine.
type syncDispatcher struct{ p *Processor }

func (d syncDispatcher) Dispatch(ctx context.Context, job TurnJob) error {
	d.p.Process(ctx, job)
	return nil
}

type serverDeps struct {
	assistant       *fakeAssistant
	knowledge       KnowledgeReloader
	notifier        *fakeNotifier
	verifier        SignatureVerifier
	twilioAuthToken string
	webhookURL      string
}

func newTestServer(t *testing.T, d serverDeps) *httptest.Server {
	t.Helper()
	if d.assistant == nil {
		d.assistant = &fakeAssistant{}
	}
	if d.notifier == nil {
		d.notifier = &fakeNotifier{}
	}
	processor := NewProcessor(d.assistant, d.knowledge, d.notifier)
	h, err := NewHandler(Deps{
		Processor:       processor,
		Dispatcher:      syncDispatcher{p: processor},
		Verifier:        d.verifier,
		TwilioAuthToken: d.twilioAuthToken,
		WebhookURL:      d.webhookURL,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(NewRouter(h, http.NotFoundHandler()))
	t.Cleanup(srv.Close)
	return srv
}

func postForm(t *testing.T, target string, form url.Values, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, serverDeps{})
	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "Whatsapp Assistant is running!", body["message"])
}

func TestWebhookRunsTurnAndSendsReply(t *testing.T) {
	t.Parallel()

	assistant := &fakeAssistant{reply: "¡Hola! ¿Qué te gustaría pedir?"}
	notifier := &fakeNotifier{}
	srv := newTestServer(t, serverDeps{assistant: assistant, notifier: notifier})

	resp := postForm(t, srv.URL+"/api/v1/webhook", url.Values{"From": {"whatsapp:+5491100000000"}, "Body": {"hola"}}, nil)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, assistant.turns, 1)
	assert.Equal(t, "whatsapp:+5491100000000", assistant.turns[0].UserID)
	assert.Equal(t, "hola", assistant.turns[0].Text)
	assert.Equal(t, []sent{{to: "whatsapp:+5491100000000", body: "¡Hola! ¿Qué te gustaría pedir?"}}, notifier.messages())
}

func TestWebhookResetCommandIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	assistant := &fakeAssistant{}
	notifier := &fakeNotifier{}
	srv := newTestServer(t, serverDeps{assistant: assistant, notifier: notifier})

	resp := postForm(t, srv.URL+"/api/v1/webhook", url.Values{"From": {"u1"}, "Body": {"  FIN "}}, nil)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"u1"}, assistant.cleared)
	assert.Empty(t, assistant.turns)
	assert.Equal(t, []sent{{to: "u1", body: ReplyReset}}, notifier.messages())
}

func TestWebhookReloadCommand(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name  string
		ok    bool
		reply string
	}{
		{name: "success", ok: true, reply: ReplyReloadOK},
		{name: "failure", ok: false, reply: ReplyReloadFailed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assistant := &fakeAssistant{}
			notifier := &fakeNotifier{}
			srv := newTestServer(t, serverDeps{assistant: assistant, knowledge: fakeReloader{ok: tc.ok}, notifier: notifier})

			postForm(t, srv.URL+"/api/v1/webhook", url.Values{"From": {"u1"}, "Body": {"Recargar"}}, nil)

			assert.Empty(t, assistant.turns)
			assert.Equal(t, []sent{{to: "u1", body: tc.reply}}, notifier.messages())
		})
	}
}

func TestWebhookFailedTurnSendsFallback(t *testing.T) {
	t.Parallel()

	assistant := &fakeAssistant{err: errors.New("model unavailable")}
	notifier := &fakeNotifier{}
	srv := newTestServer(t, serverDeps{assistant: assistant, notifier: notifier})

	postForm(t, srv.URL+"/api/v1/webhook", url.Values{"From": {"u1"}, "Body": {"hola"}}, nil)

	assert.Equal(t, []sent{{to: "u1", body: ReplyUnexpected}}, notifier.messages())
}

func TestWebhookIgnoresEmptyBody(t *testing.T) {
	t.Parallel()

	assistant := &fakeAssistant{}
	notifier := &fakeNotifier{}
	srv := newTestServer(t, serverDeps{assistant: assistant, notifier: notifier})

	resp := postForm(t, srv.URL+"/api/v1/webhook", url.Values{"From": {"u1"}, "Body": {"   "}}, nil)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, assistant.turns)
	assert.Empty(t, notifier.messages())
}

func TestWebhookRequiresSender(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, serverDeps{})
	resp := postForm(t, srv.URL+"/api/v1/webhook", url.Values{"Body": {"hola"}}, nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookTwilioSignature(t *testing.T) {
	t.Parallel()

	const token = "twilio-secret"
	const publicURL = "https://bot.example.com/api/v1/webhook"
	assistant := &fakeAssistant{reply: "ok"}
	srv := newTestServer(t, serverDeps{
		assistant:       assistant,
		twilioAuthToken: token,
		webhookURL:      publicURL,
	})

	form := url.Values{"From": {"u1"}, "Body": {"hola"}}

	bad := postForm(t, srv.URL+"/api/v1/webhook", form, http.Header{"X-Twilio-Signature": {"forged"}})
	assert.Equal(t, http.StatusForbidden, bad.StatusCode)
	assert.Empty(t, assistant.turns)

	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(publicURL + "Bodyhola" + "Fromu1"))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	good := postForm(t, srv.URL+"/api/v1/webhook", form, http.Header{"X-Twilio-Signature": {sig}})
	assert.Equal(t, http.StatusNoContent, good.StatusCode)
	assert.Len(t, assistant.turns, 1)
}

type fakeVerifier struct{ err error }

func (f fakeVerifier) Verify(string, []byte, string) error { return f.err }

func TestJobEndpoint(t *testing.T) {
	t.Parallel()

	payload := `{"user_id":"u1","text":"hola"}`

	t.Run("disabled without verifier", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, serverDeps{})
		resp, err := http.Post(srv.URL+"/api/v1/jobs/turn", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("rejects invalid signature", func(t *testing.T) {
		t.Parallel()
		assistant := &fakeAssistant{}
		srv := newTestServer(t, serverDeps{assistant: assistant, verifier: fakeVerifier{err: errors.New("bad")}})
		resp, err := http.Post(srv.URL+"/api/v1/jobs/turn", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, assistant.turns)
	})

	t.Run("processes verified job", func(t *testing.T) {
		t.Parallel()
		assistant := &fakeAssistant{reply: "listo"}
		notifier := &fakeNotifier{}
		srv := newTestServer(t, serverDeps{assistant: assistant, notifier: notifier, verifier: fakeVerifier{}})
		resp, err := http.Post(srv.URL+"/api/v1/jobs/turn", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []sent{{to: "u1", body: "listo"}}, notifier.messages())
	})

	t.Run("rejects payload without user", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, serverDeps{verifier: fakeVerifier{}})
		resp, err := http.Post(srv.URL+"/api/v1/jobs/turn", "application/json", strings.NewReader(`{"text":"hola"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestInProcessDispatcherShutdownWaitsForJobs(t *testing.T) {
	t.Parallel()

	assistant := &fakeAssistant{reply: "ok"}
	notifier := &fakeNotifier{}
	d := NewInProcessDispatcher(NewProcessor(assistant, nil, notifier), time.Second)

	require.NoError(t, d.Dispatch(context.Background(), TurnJob{UserID: "u1", Text: "hola"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	assert.Len(t, notifier.messages(), 1)

	assert.ErrorIs(t, d.Dispatch(context.Background(), TurnJob{UserID: "u1", Text: "x"}), errDispatcherClosed)
}

type fakePublisher struct {
	err  error
	dest string
	jobs []any
}

func (f *fakePublisher) Publish(_ context.Context, destination string, payload any) (string, error) {
	f.dest = destination
	f.jobs = append(f.jobs, payload)
	return "msg_1", f.err
}

type recordingDispatcher struct{ jobs []TurnJob }

func (r *recordingDispatcher) Dispatch(_ context.Context, job TurnJob) error {
	r.jobs = append(r.jobs, job)
	return nil
}

func TestNewHandlerRequiresProcessor(t *testing.T) {
	t.Parallel()

	_, err := NewHandler(Deps{})
	assert.Error(t, err)
}

func TestQueueDispatcher(t *testing.T) {
	t.Parallel()

	_, err := NewQueueDispatcher(&fakePublisher{}, " ", nil)
	require.Error(t, err)

	pub := &fakePublisher{}
	fallback := &recordingDispatcher{}
	d, err := NewQueueDispatcher(pub, "https://bot.example.com/api/v1/jobs/turn", fallback)
	require.NoError(t, err)

	job := TurnJob{UserID: "u1", Text: "hola"}
	require.NoError(t, d.Dispatch(context.Background(), job))
	assert.Equal(t, "https://bot.example.com/api/v1/jobs/turn", pub.dest)
	assert.Empty(t, fallback.jobs)

	pub.err = errors.New("qstash down")
	require.NoError(t, d.Dispatch(context.Background(), job))
	assert.Equal(t, []TurnJob{job}, fallback.jobs)
}
