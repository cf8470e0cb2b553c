package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	ordernotify "github.com/goliatone/go-order-notify"
	"github.com/goliatone/go-order-notify/adapters/resend"
	"github.com/goliatone/go-order-notify/core"
)

// Globals are flags shared by every subcommand. Set values override the
// environment.
type Globals struct {
	LogLevel    string `name:"log-level" help:"Log level (trace, debug, info, warn, error)."`
	Addr        string `name:"addr" help:"HTTP listen address."`
	AppURL      string `name:"app-url" help:"Public base URL used in email links."`
	DatabaseURL string `name:"database-url" help:"Ledger DSN. Enables dispatch history."`
	DBDriver    string `name:"db-driver" help:"Ledger driver: postgres or sqlite."`
	RedisAddr   string `name:"redis-addr" help:"Redis address for the dead letter queue."`
	Metrics     bool   `name:"metrics" help:"Expose Prometheus metrics on /metrics."`
	Dedupe      bool   `name:"dedupe" help:"Drop repeated webhook deliveries."`
}

func (g *Globals) overrides() ordernotify.Config {
	var cfg ordernotify.Config
	if g == nil {
		return cfg
	}
	cfg.LogLevel = g.LogLevel
	cfg.HTTP.Addr = g.Addr
	cfg.App.URL = g.AppURL
	cfg.Persistence.DSN = g.DatabaseURL
	cfg.Persistence.Driver = g.DBDriver
	cfg.DLQ.RedisAddr = g.RedisAddr
	cfg.Metrics.Enabled = g.Metrics
	cfg.Webhook.Dedupe = g.Dedupe
	return cfg
}

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the payment webhook receiver."`
	Replay  ReplayCmd  `cmd:"" help:"Re-run a stored webhook payload through the email pipeline."`
	History HistoryCmd `cmd:"" help:"Print the notification history of one order."`
	Pending PendingCmd `cmd:"" help:"List webhook deliveries that were never processed."`
}

// runtime carries process collaborators so tests can swap them.
type runtime struct {
	ctx       context.Context
	out       io.Writer
	errOut    io.Writer
	newSender func(cfg core.Config) (core.EmailSender, error)
}

func defaultRuntime(ctx context.Context) *runtime {
	return &runtime{
		ctx:    ctx,
		out:    os.Stdout,
		errOut: os.Stderr,
		newSender: func(cfg core.Config) (core.EmailSender, error) {
			return resend.New(cfg.Email.ResendAPIKey)
		},
	}
}

func main() {
	if err := execute(os.Args[1:], defaultRuntime(context.Background())); err != nil {
		fmt.Fprintln(os.Stderr, "notifyd:", err)
		os.Exit(1)
	}
}

func execute(args []string, rt *runtime) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("notifyd"),
		kong.Description("Payment webhook receiver that sends admin and customer emails."),
		kong.UsageOnError(),
		kong.Writers(rt.out, rt.errOut),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kctx.Run(&cli.Globals, rt)
}
