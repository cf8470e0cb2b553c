package main

import (
	"time"
)

type HistoryCmd struct {
	Order string `name:"order" required:"" help:"Order id as shown in emails, e.g. #1001."`
	Limit int    `name:"limit" default:"50" help:"Maximum entries to print."`
}

func (c *HistoryCmd) Run(g *Globals, rt *runtime) error {
	env, err := bootstrap(g, rt)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	stores, err := env.requireStores()
	if err != nil {
		return err
	}
	records, err := stores.NotificationDispatchStore().ListByOrder(rt.ctx, c.Order, c.Limit)
	if err != nil {
		return err
	}
	return writeJSON(rt.out, records)
}

type PendingCmd struct {
	Limit int `name:"limit" default:"50" help:"Maximum deliveries to print."`
}

type pendingView struct {
	ProviderID    string     `json:"providerId"`
	DeliveryID    string     `json:"deliveryId"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	Payload       string     `json:"payload,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (c *PendingCmd) Run(g *Globals, rt *runtime) error {
	env, err := bootstrap(g, rt)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	stores, err := env.requireStores()
	if err != nil {
		return err
	}
	pending, err := stores.WebhookDeliveryStore().Pending(rt.ctx, c.Limit)
	if err != nil {
		return err
	}
	views := make([]pendingView, 0, len(pending))
	for _, delivery := range pending {
		views = append(views, pendingView{
			ProviderID:    delivery.Record.ProviderID,
			DeliveryID:    delivery.Record.DeliveryID,
			Status:        delivery.Record.Status,
			Attempts:      delivery.Record.Attempts,
			NextAttemptAt: delivery.Record.NextAttemptAt,
			LastError:     delivery.LastError,
			Payload:       string(delivery.Payload),
			CreatedAt:     delivery.Record.CreatedAt,
		})
	}
	return writeJSON(rt.out, views)
}
