package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientSend(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody OutboundMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "gw-secret", 5*time.Second)
	err := c.Send(context.Background(), OutboundMessage{
		TenantID:    "tenant-1",
		Destination: "+306912345678",
		Type:        "text",
		Text:        "Hello!",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/v1/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer gw-secret" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody.Destination != "+306912345678" || gotBody.Text != "Hello!" {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestClientSend_NoAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	if err := c.Send(context.Background(), OutboundMessage{Text: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
}

func TestClientSend_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	if err := c.Send(context.Background(), OutboundMessage{Text: "hi"}); err == nil {
		t.Fatalf("want error on 502")
	}
}

func TestClientSend_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, "", 5*time.Second)
	if err := c.Send(ctx, OutboundMessage{Text: "hi"}); err == nil {
		t.Fatalf("want error on canceled context")
	}
}
