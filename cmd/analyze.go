package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/0xlemi/tunecoach/internal/audio"
	"github.com/0xlemi/tunecoach/internal/engine"
	"github.com/0xlemi/tunecoach/internal/pitch"
)

// analyzeQueueSize keeps file replay lossless: blocks are decoded much faster
// than real time.
const analyzeQueueSize = 4096

type analyzeOptions struct {
	target   string
	jobs     int
	realtime bool
	events   bool
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze FILE.wav...",
		Short: "Replay WAV recordings through the engine and summarize them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			return a.analyze(cmd.Context(), files, opts)
		},
	}
	cmd.Flags().StringVar(&opts.target, "target", "", "note to score detections against")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", runtime.NumCPU(), "files analyzed at once")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", false, "pace playback at the file's sample rate")
	cmd.Flags().BoolVar(&opts.events, "events", true, "print every detection, not only the summary")
	return cmd
}

// analyze processes files concurrently and prints each report in argument
// order.
func (a *app) analyze(ctx context.Context, files []string, opts analyzeOptions) error {
	target, err := parseTarget(opts.target)
	if err != nil {
		return err
	}
	log, closer, err := a.logger()
	if err != nil {
		return err
	}
	defer closer.Close()

	reports := make([]bytes.Buffer, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.jobs))
	for i, path := range files {
		g.Go(func() error {
			err := a.analyzeFile(ctx, path, target, opts, log, &reports[i])
			if err != nil {
				log.Error("analysis failed", slog.String("file", path), slog.Any("error", err))
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		})
	}
	err = g.Wait()

	for i := range reports {
		if reports[i].Len() > 0 {
			a.stdout.Write(reports[i].Bytes())
		}
	}
	return err
}

func (a *app) analyzeFile(ctx context.Context, path string, target *pitch.Note, opts analyzeOptions, log *slog.Logger, out *bytes.Buffer) error {
	ec, err := a.cfg.Engine()
	if err != nil {
		return err
	}
	ec.EmitSamples = false
	ec.QueueSize = analyzeQueueSize

	src := audio.NewWavSource(path, opts.realtime)
	eng := engine.New(src, ec, engine.WithLogger(log.With(slog.String("file", path))))
	defer eng.Close()

	sum := newSummary()
	var lines []string
	ended := make(chan error, 1)
	sub := eng.Subscribe(func(ev engine.Event) {
		sum.add(ev, target)
		if opts.events {
			if line := formatEvent(ev, target); line != "" {
				lines = append(lines, line)
			}
		}
		if e, ok := ev.(engine.CaptureEnded); ok {
			ended <- e.Err
		}
	})

	// The file's own rate wins; the block size comes from the configuration.
	if err := eng.Start(a.cfg.Session()); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		eng.Stop()
		return ctx.Err()
	case err = <-ended:
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "== %s (%s tier)\n", path, ec.Tier)
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	sum.write(out, target)
	if n := sub.Dropped(); n > 0 {
		fmt.Fprintf(out, "  dropped events: %d\n", n)
	}
	return nil
}
