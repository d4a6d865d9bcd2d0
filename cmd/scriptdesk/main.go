package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/goliatone/go-scriptdesk/app"
	"github.com/goliatone/go-scriptdesk/config"
)

// CLI is the scriptdesk command tree.
type CLI struct {
	Config   string `help:"Path to the YAML config file." short:"c" type:"path" env:"SCRIPTDESK_CONFIG"`
	Output   string `help:"Output format." enum:"text,json" default:"text" short:"o"`
	LogLevel string `help:"Override the configured log level." name:"log-level"`

	Scripts    ScriptsCmd    `cmd:"" help:"Browse the script catalog."`
	Submit     SubmitCmd     `cmd:"" help:"Fill in a script form and submit it."`
	Executions ExecutionsCmd `cmd:"" help:"List, inspect and export executions." aliases:"exec"`
	Approve    ApproveCmd    `cmd:"" help:"Approve a pending execution."`
	Reject     RejectCmd     `cmd:"" help:"Reject a pending execution."`
	Rerun      RerunCmd      `cmd:"" help:"Run a completed execution again."`
	User       UserCmd       `cmd:"" help:"Show or switch the session user."`
	Watch      WatchCmd      `cmd:"" help:"Run the scheduler and stream execution updates."`
}

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout); err != nil {
		die(err)
	}
}

func execute(ctx context.Context, args []string, out io.Writer, opts ...app.Option) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("scriptdesk"),
		kong.Description("Submit, approve and track script executions."),
		kong.Writers(out, os.Stderr),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if lvl := strings.TrimSpace(cli.LogLevel); lvl != "" {
		cfg.Log.Level = lvl
	}

	state, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := state.Close(shutdown); err != nil {
			state.Logger().Warn("shutdown: %v", err)
		}
	}()

	if err := state.Start(ctx); err != nil {
		return err
	}

	return kctx.Run(&Env{
		Ctx:   ctx,
		State: state,
		Out:   out,
		JSON:  cli.Output == "json",
	})
}

func die(err error) {
	fmt.Fprintf(os.Stderr, "scriptdesk: %v\n", err)
	os.Exit(1)
}
