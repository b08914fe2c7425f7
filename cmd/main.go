package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/0xlemi/tunecoach/internal/config"
	"github.com/0xlemi/tunecoach/internal/logging"
)

// app carries the resolved configuration into every command.
type app struct {
	cfg     config.Config
	envFile string
	stdout  io.Writer
	stderr  io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{cfg: config.Default(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:          "tunecoach",
		Short:        "Real-time pitch and onset feedback for musicians",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.cfg.Resolve(cmd.Flags(), a.envFile)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	a.cfg.Bind(root.PersistentFlags())
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file with TUNECOACH_* settings")

	root.AddCommand(
		newListenCmd(a),
		newAnalyzeCmd(a),
		newServeCmd(a),
	)
	return root
}

// logger writes to the configured log file, or to stderr when there is none.
func (a *app) logger() (*slog.Logger, io.Closer, error) {
	level, err := a.cfg.Level()
	if err != nil {
		return nil, nil, err
	}
	if a.cfg.LogFile != "" {
		log, closer, err := logging.Open(a.cfg.LogFile, level)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return log, closer, nil
	}
	return logging.New(a.stderr, level), io.NopCloser(nil), nil
}
