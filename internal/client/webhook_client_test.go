package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWebhookNotifier_Notify_Success(t *testing.T) {
	t.Parallel()

	type gotReq struct {
		Method      string
		ContentType string
		Body        []byte
	}

	var captured gotReq

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Method = r.Method
		captured.ContentType = r.Header.Get("Content-Type")

		b, _ := ioReadAll(r)
		captured.Body = b

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Accepted"))
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)

	if err := n.Notify(context.Background(), "Completed SMS batch for 3 contacts."); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	if captured.Method != http.MethodPost {
		t.Fatalf("expected method POST, got %q", captured.Method)
	}
	if captured.ContentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", captured.ContentType)
	}

	var req notifyRequest
	if err := json.Unmarshal(captured.Body, &req); err != nil {
		t.Fatalf("failed to decode request json: %v body=%q", err, string(captured.Body))
	}
	if req.Message != "Completed SMS batch for 3 contacts." {
		t.Fatalf("unexpected message %q", req.Message)
	}
}

func TestWebhookNotifier_Notify_Non2xx_ReturnsErrorWithBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte("scenario disabled"))
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, time.Second).Notify(context.Background(), "hi")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	msg := err.Error()
	if !strings.Contains(msg, "unexpected status code: 410") {
		t.Fatalf("expected error to mention status code, got: %v", err)
	}
	if !strings.Contains(msg, `body="scenario disabled"`) {
		t.Fatalf("expected error to include body, got: %v", err)
	}
}

func TestWebhookNotifier_Notify_ContextCanceled(t *testing.T) {
	t.Parallel()

	// Server that intentionally blocks longer than our context deadline.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := NewWebhookNotifier(srv.URL, time.Second).Notify(ctx, "hi")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	// On cancellation, net/http returns context deadline exceeded.
	if !strings.Contains(strings.ToLower(err.Error()), "context") &&
		!strings.Contains(strings.ToLower(err.Error()), "deadline") {
		t.Fatalf("expected context/deadline error, got: %v", err)
	}
}

func TestNopNotifier(t *testing.T) {
	if err := (NopNotifier{}).Notify(context.Background(), "x"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func ioReadAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
