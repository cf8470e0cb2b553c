package resend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-order-notify/core"
	resendapi "github.com/resend/resend-go/v2"
)

func TestSender_SendsThroughResendAPI(t *testing.T) {
	var captured map[string]any
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_123"}`))
	}))
	defer server.Close()

	client := resendapi.NewClient("re_test")
	base, err := url.Parse(server.URL + "/")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client.BaseURL = base
	sender, err := NewWithClient(client)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}

	id, err := sender.Send(context.Background(), core.EmailMessage{
		From:    "Aurora <noreply@aurora.crystals>",
		To:      []string{"orders@aurora.crystals"},
		Subject: "New paid order received - #1001 (paid)",
		HTML:    "<p>hi</p>",
		Text:    "hi",
		ReplyTo: "a@b.com",
		Tags:    map[string]string{"status": "paid", "recipient": "admin"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "msg_123" {
		t.Fatalf("expected provider id, got %q", id)
	}
	if auth != "Bearer re_test" {
		t.Fatalf("expected bearer auth, got %q", auth)
	}
	if captured["subject"] != "New paid order received - #1001 (paid)" || captured["reply_to"] != "a@b.com" {
		t.Fatalf("unexpected request body %#v", captured)
	}
	tags, _ := captured["tags"].([]any)
	if len(tags) != 2 {
		t.Fatalf("expected two tags, got %#v", captured["tags"])
	}
	first, _ := tags[0].(map[string]any)
	if first["name"] != "recipient" || first["value"] != "admin" {
		t.Fatalf("expected tags sorted by name, got %#v", tags)
	}
}

func TestSender_WrapsProviderErrors(t *testing.T) {
	sender, err := NewWithEmailsAPI(stubEmails{err: errors.New("rate limited")})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	_, err = sender.Send(context.Background(), core.EmailMessage{To: []string{"a@b.com"}})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Code != http.StatusBadGateway || rich.TextCode != core.ErrorDispatchFailed {
		t.Fatalf("unexpected envelope %d %q", rich.Code, rich.TextCode)
	}
}

func TestSender_EmptyIDIsReturnedAsIs(t *testing.T) {
	sender, _ := NewWithEmailsAPI(stubEmails{resp: &resendapi.SendEmailResponse{Id: "  "}})
	id, err := sender.Send(context.Background(), core.EmailMessage{To: []string{"a@b.com"}})
	if err != nil || id != "" {
		t.Fatalf("expected empty id without error, got %q %v", id, err)
	}
}

func TestSender_RequiresConfiguration(t *testing.T) {
	if _, err := New(" "); err == nil {
		t.Fatalf("expected api key to be required")
	}
	if _, err := NewWithEmailsAPI(nil); err == nil {
		t.Fatalf("expected emails api to be required")
	}
	sender, _ := NewWithEmailsAPI(stubEmails{})
	if _, err := sender.Send(context.Background(), core.EmailMessage{}); err == nil {
		t.Fatalf("expected recipients to be required")
	}
}

func TestSanitizeTag(t *testing.T) {
	if got := sanitizeTag(" partially refunded! "); got != "partially_refunded_" {
		t.Fatalf("unexpected sanitized tag %q", got)
	}
}

type stubEmails struct {
	resp *resendapi.SendEmailResponse
	err  error
}

func (s stubEmails) SendWithContext(context.Context, *resendapi.SendEmailRequest) (*resendapi.SendEmailResponse, error) {
	return s.resp, s.err
}
