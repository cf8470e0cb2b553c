package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[SendPaymentEmailsMessage]    = (*SendPaymentEmailsCommand)(nil)
	_ gocmd.Commander[PreviewPaymentEmailsMessage] = (*PreviewPaymentEmailsCommand)(nil)
)
