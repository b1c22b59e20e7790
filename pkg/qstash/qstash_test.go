package qstash

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const destination = "https://bot.example/api/v1/jobs/turn"

func sign(t *testing.T, key string, body []byte, sub string, exp time.Time) string {
	t.Helper()
	sum := sha256.Sum256(body)
	claims := signatureClaims{
		Body: base64.URLEncoding.EncodeToString(sum[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "Upstash",
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		URL:               baseURL,
		Token:             "tok",
		CurrentSigningKey: "current",
		NextSigningKey:    "next",
		Retries:           2,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestVerifyAcceptsCurrentAndNextKey(t *testing.T) {
	t.Parallel()

	c := testClient(t, "https://qstash.upstash.io")
	body := []byte(`{"user_id":"u1","text":"hola"}`)
	exp := time.Now().Add(5 * time.Minute)

	if err := c.Verify(sign(t, "current", body, destination, exp), body, destination); err != nil {
		t.Fatalf("current key rejected: %v", err)
	}
	if err := c.Verify(sign(t, "next", body, destination, exp), body, destination); err != nil {
		t.Fatalf("next key rejected: %v", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	t.Parallel()

	c := testClient(t, "https://qstash.upstash.io")
	body := []byte(`{"user_id":"u1"}`)
	exp := time.Now().Add(5 * time.Minute)

	cases := map[string]string{
		"wrong key":     sign(t, "other", body, destination, exp),
		"wrong subject": sign(t, "current", body, "https://evil.example", exp),
		"tampered body": sign(t, "current", []byte(`{"user_id":"u2"}`), destination, exp),
		"expired":       sign(t, "current", body, destination, time.Now().Add(-time.Hour)),
		"empty":         "",
	}
	for name, sig := range cases {
		if err := c.Verify(sig, body, destination); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("%s: expected ErrInvalidSignature, got %v", name, err)
		}
	}
}

func TestPublish(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotRetries string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRetries = r.Header.Get("Upstash-Retries")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = io.WriteString(w, `{"messageId":"msg_1"}`)
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	id, err := c.Publish(context.Background(), destination, map[string]string{"user_id": "u1"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if id != "msg_1" {
		t.Fatalf("unexpected id %q", id)
	}
	if gotPath != "/v2/publish/"+destination {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer tok" || gotRetries != "2" || gotBody["user_id"] != "u1" {
		t.Fatalf("unexpected request: auth=%q retries=%q body=%v", gotAuth, gotRetries, gotBody)
	}
}
