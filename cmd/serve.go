package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/0xlemi/tunecoach/internal/audio"
	"github.com/0xlemi/tunecoach/internal/bridge"
	"github.com/0xlemi/tunecoach/internal/engine"
)

// feedCapacity is how many client blocks may wait for the engine.
const feedCapacity = 8

func newServeCmd(a *app) *cobra.Command {
	var (
		feed      bool
		autostart bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Publish engine events to socket.io clients",
		Long: "Serve runs the engine behind a socket.io endpoint at /socket.io/. Clients receive\n" +
			"NOTE_EVENT, ONSET_EVENT, PCM_DATA and STREAM_STALLED and send start/stop.\n" +
			"With --feed the audio comes from clients as pcm events instead of the microphone.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), feed, autostart)
		},
	}
	cmd.Flags().BoolVar(&feed, "feed", false, "take audio from clients instead of the microphone")
	cmd.Flags().BoolVar(&autostart, "autostart", false, "start a session without waiting for a client")
	return cmd
}

func (a *app) serve(ctx context.Context, feed, autostart bool) error {
	ec, err := a.cfg.Engine()
	if err != nil {
		return err
	}
	log, closer, err := a.logger()
	if err != nil {
		return err
	}
	defer closer.Close()

	var (
		src  audio.Source
		opts = []bridge.Option{bridge.WithLogger(log)}
	)
	if feed {
		fs := audio.NewFeedSource(feedCapacity)
		src = fs
		opts = append(opts, bridge.WithFeed(fs))
	} else {
		mic := audio.NewPortAudioSource(channels)
		mic.SetAmplification(float32(a.cfg.Gain))
		src = mic
	}

	eng := engine.New(src, ec, engine.WithLogger(log))
	defer eng.Close()

	srv := bridge.New(eng, a.cfg.Session(), opts...)
	if autostart {
		if err := eng.Start(a.cfg.Session()); err != nil {
			return err
		}
	}

	log.Info("serving", slog.String("addr", a.cfg.Addr), slog.Bool("feed", feed), slog.String("tier", ec.Tier.String()))
	return srv.ListenAndServe(ctx, a.cfg.Addr)
}
