package resend

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-order-notify/core"
	resendapi "github.com/resend/resend-go/v2"
)

// EmailsAPI is the slice of the Resend client used for sending.
type EmailsAPI interface {
	SendWithContext(ctx context.Context, params *resendapi.SendEmailRequest) (*resendapi.SendEmailResponse, error)
}

type Sender struct {
	emails EmailsAPI
}

func New(apiKey string) (*Sender, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("resend: api key is required")
	}
	return NewWithClient(resendapi.NewClient(apiKey))
}

func NewWithClient(client *resendapi.Client) (*Sender, error) {
	if client == nil || client.Emails == nil {
		return nil, fmt.Errorf("resend: client is required")
	}
	return &Sender{emails: client.Emails}, nil
}

func NewWithEmailsAPI(emails EmailsAPI) (*Sender, error) {
	if emails == nil {
		return nil, fmt.Errorf("resend: emails api is required")
	}
	return &Sender{emails: emails}, nil
}

// Send returns the provider message id. An accepted request without an id is
// reported by the dispatcher, not here.
func (s *Sender) Send(ctx context.Context, msg core.EmailMessage) (string, error) {
	if s == nil || s.emails == nil {
		return "", fmt.Errorf("resend: sender is not configured")
	}
	if len(msg.To) == 0 {
		return "", fmt.Errorf("resend: at least one recipient is required")
	}
	resp, err := s.emails.SendWithContext(ctx, buildRequest(msg))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryExternal, "resend: send email failed").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ErrorDispatchFailed)
	}
	if resp == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Id), nil
}

func buildRequest(msg core.EmailMessage) *resendapi.SendEmailRequest {
	return &resendapi.SendEmailRequest{
		From:    msg.From,
		To:      append([]string(nil), msg.To...),
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
		Tags:    buildTags(msg.Tags),
	}
}

// buildTags sorts by name so requests are stable.
func buildTags(tags map[string]string) []resendapi.Tag {
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]resendapi.Tag, 0, len(names))
	for _, name := range names {
		out = append(out, resendapi.Tag{Name: sanitizeTag(name), Value: sanitizeTag(tags[name])})
	}
	return out
}

// sanitizeTag keeps the ASCII letters, digits, underscores and dashes Resend
// accepts in tag names and values.
func sanitizeTag(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.EmailSender = (*Sender)(nil)
