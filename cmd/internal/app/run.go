package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

// Run is the CLI entrypoint used by cmd/arcclient.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(args []string) error {
	cfg, err := LoadConfigFromArgs(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log, Deps{})
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}
