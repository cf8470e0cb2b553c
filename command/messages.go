package command

import (
	"bytes"
	"strings"
)

const (
	TypeSendPaymentEmails    = "notify.command.payment_emails.send"
	TypePreviewPaymentEmails = "notify.command.payment_emails.preview"

	SourceFile       = "file"
	SourceDeadLetter = "dead_letter"
)

// SendPaymentEmailsMessage replays a stored webhook body through the
// notification pipeline.
type SendPaymentEmailsMessage struct {
	Payload []byte
	Source  string
}

func (SendPaymentEmailsMessage) Type() string { return TypeSendPaymentEmails }

func (m SendPaymentEmailsMessage) Validate() error {
	return validatePayload(m.Payload, m.Source)
}

// PreviewPaymentEmailsMessage normalizes a stored webhook body without
// sending anything.
type PreviewPaymentEmailsMessage struct {
	Payload []byte
	Source  string
}

func (PreviewPaymentEmailsMessage) Type() string { return TypePreviewPaymentEmails }

func (m PreviewPaymentEmailsMessage) Validate() error {
	return validatePayload(m.Payload, m.Source)
}

func validatePayload(payload []byte, source string) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return commandValidationError("payload", "payload is required")
	}
	switch strings.TrimSpace(source) {
	case "", SourceFile, SourceDeadLetter:
		return nil
	default:
		return commandValidationError("source", "source must be file or dead_letter")
	}
}
