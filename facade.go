package ordernotify

import (
	"fmt"

	notifycommand "github.com/goliatone/go-order-notify/command"
	"github.com/goliatone/go-order-notify/notifications"
)

type Commands struct {
	SendPaymentEmails    *notifycommand.SendPaymentEmailsCommand
	PreviewPaymentEmails *notifycommand.PreviewPaymentEmailsCommand
}

// Facade exposes the payment email pipeline as go-command handlers for
// callers outside the HTTP receiver.
type Facade struct {
	dispatcher notifycommand.PaymentDispatcher
	commands   Commands
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	normalizer *notifications.Normalizer
}

// WithPreviewNormalizer overrides the normalizer used by the preview command.
func WithPreviewNormalizer(normalizer notifications.Normalizer) FacadeOption {
	return func(options *facadeOptions) {
		options.normalizer = &normalizer
	}
}

func NewFacade(dispatcher notifycommand.PaymentDispatcher, opts ...FacadeOption) (*Facade, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("ordernotify: payment dispatcher is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	normalizer := resolveNormalizer(dispatcher, cfg.normalizer)
	return &Facade{
		dispatcher: dispatcher,
		commands: Commands{
			SendPaymentEmails:    notifycommand.NewSendPaymentEmailsCommand(dispatcher),
			PreviewPaymentEmails: notifycommand.NewPreviewPaymentEmailsCommand(normalizer),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Dispatcher() notifycommand.PaymentDispatcher {
	if f == nil {
		return nil
	}
	return f.dispatcher
}

// resolveNormalizer prefers an explicit override, then the dispatcher's own
// normalizer so previews match what a send would produce.
func resolveNormalizer(dispatcher notifycommand.PaymentDispatcher, override *notifications.Normalizer) notifications.Normalizer {
	if override != nil {
		return *override
	}
	if provider, ok := dispatcher.(interface {
		Normalizer() notifications.Normalizer
	}); ok {
		return provider.Normalizer()
	}
	return notifications.NewNormalizer("")
}
