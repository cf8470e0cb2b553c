package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goliatone/go-order-notify/adapters/gocommand"
	"github.com/goliatone/go-order-notify/adapters/redisdlq"
	notifycommand "github.com/goliatone/go-order-notify/command"
	"github.com/goliatone/go-order-notify/notifications"
)

type ReplayCmd struct {
	File    string `name:"file" type:"path" help:"Webhook body to replay."`
	FromDLQ bool   `name:"from-dlq" help:"Pop the oldest dead letter and replay it."`
	DryRun  bool   `name:"dry-run" help:"Print the normalized payload without sending."`
}

type replayOutput struct {
	Source     string                             `json:"source"`
	DryRun     bool                               `json:"dryRun"`
	DeliveryID string                             `json:"deliveryId,omitempty"`
	Result     *notifications.SendResult          `json:"result,omitempty"`
	Preview    *notifications.PaymentEmailPayload `json:"preview,omitempty"`
}

func (c *ReplayCmd) checkSource() error {
	hasFile := strings.TrimSpace(c.File) != ""
	if hasFile == c.FromDLQ {
		return fmt.Errorf("exactly one of --file or --from-dlq is required")
	}
	return nil
}

func (c *ReplayCmd) Run(g *Globals, rt *runtime) error {
	if err := c.checkSource(); err != nil {
		return err
	}
	env, err := bootstrap(g, rt)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	if c.FromDLQ {
		return c.replayDeadLetter(rt, env)
	}
	payload, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	out, err := c.replay(rt.ctx, env, payload, notifycommand.SourceFile)
	if err != nil {
		return err
	}
	return writeJSON(rt.out, out)
}

// replayDeadLetter pops one letter. It goes back on the queue when the
// replay fails or nothing was sent.
func (c *ReplayCmd) replayDeadLetter(rt *runtime, env *environment) error {
	if env.queue == nil {
		return fmt.Errorf("a dead letter queue is required (set REDIS_ADDR or --redis-addr)")
	}
	letter, err := env.queue.Pop(rt.ctx)
	if errors.Is(err, redisdlq.ErrEmpty) {
		return fmt.Errorf("dead letter queue %q is empty", env.queue.Key())
	}
	if err != nil {
		return err
	}

	out, err := c.replay(rt.ctx, env, letter.Payload, notifycommand.SourceDeadLetter)
	if err != nil || c.DryRun {
		if requeueErr := env.queue.Requeue(rt.ctx, letter); requeueErr != nil {
			env.logger.Error("dead letter requeue failed",
				"delivery_id", letter.DeliveryID,
				"order_id", letter.OrderID,
				"error", requeueErr,
			)
			return errors.Join(err, requeueErr)
		}
	}
	if err != nil {
		env.logger.Warn("dead letter replay failed, letter requeued",
			"delivery_id", letter.DeliveryID,
			"order_id", letter.OrderID,
			"error", err,
		)
		return err
	}
	out.DeliveryID = letter.DeliveryID
	return writeJSON(rt.out, out)
}

func (c *ReplayCmd) replay(ctx context.Context, env *environment, payload []byte, source string) (replayOutput, error) {
	commands := env.app.Facade().Commands()
	out := replayOutput{Source: source, DryRun: c.DryRun}
	if c.DryRun {
		preview, err := gocommand.Run[notifycommand.PreviewPaymentEmailsMessage, notifications.PaymentEmailPayload](
			ctx,
			commands.PreviewPaymentEmails,
			notifycommand.PreviewPaymentEmailsMessage{Payload: payload, Source: source},
		)
		if err != nil {
			return out, err
		}
		out.Preview = &preview
		return out, nil
	}

	result, err := gocommand.Run[notifycommand.SendPaymentEmailsMessage, notifications.SendResult](
		ctx,
		commands.SendPaymentEmails,
		notifycommand.SendPaymentEmailsMessage{Payload: payload, Source: source},
	)
	if err != nil {
		return out, err
	}
	env.logger.Info("payment emails replayed",
		"source", source,
		"admin_message_id", result.AdminMessageID,
		"customer_message_id", result.CustomerMessageID,
	)
	out.Result = &result
	return out, nil
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
