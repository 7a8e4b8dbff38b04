// Command sourcectl edits OAuth sources on a source management server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"sourcectl/internal/client"
	"sourcectl/internal/config"
	"sourcectl/internal/observability"
	"sourcectl/internal/sourceform"
)

const usage = `usage: sourcectl [-config file] <command> [flags]

commands:
  types [prefix]   list provider types
  show <slug>      print a stored source
  form             print the fields the editor would render
  apply            create or update a source from a YAML values file
`

// exitIconFailed is returned when the source was saved but its icon was not.
const exitIconFailed = 3

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// env carries what every command needs.
type env struct {
	client *client.Client
	logger observability.Logger
	stdout io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sourcectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", os.Getenv("SOURCECTL_CONFIG"), "path to YAML config file (optional, can use env vars)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	logCfg := observability.ConfigFromEnv("SOURCECTL")
	logCfg.Output = stderr
	logger := observability.NewLogger(logCfg)

	flush, _ := observability.InitSentry(observability.SentryConfigFromEnv(), logger)
	defer flush()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}
	c, err := client.New(client.Options{
		ServerURL: cfg.ServerURL,
		Token:     cfg.Token,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimitRPS,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create client", "error", err)
		return 1
	}
	e := &env{client: c, logger: logger, stdout: stdout}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "types":
		err = e.types(ctx, rest)
	case "show":
		err = e.show(ctx, rest)
	case "form":
		err = e.form(ctx, rest)
	case "apply":
		err = e.apply(ctx, rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	var iconErr *sourceform.IconError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 2
	case errors.As(err, &iconErr):
		logger.Warn("source saved but icon update failed", "slug", iconErr.Slug, "error", iconErr.Err)
		observability.CaptureError(err)
		return exitIconFailed
	default:
		logger.Error(cmd+" failed", "error", err)
		observability.CaptureError(err)
		return 1
	}
}
