package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/0xlemi/tunecoach/internal/audio"
	"github.com/0xlemi/tunecoach/internal/engine"
	"github.com/0xlemi/tunecoach/internal/logging"
	"github.com/0xlemi/tunecoach/internal/pitch"
	"github.com/0xlemi/tunecoach/internal/ui"
)

const channels = 1

func newListenCmd(a *app) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Analyze the default microphone in real time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			note, err := parseTarget(target)
			if err != nil {
				return err
			}
			return a.listen(cmd.Context(), note)
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "note to match, e.g. A4, C#3 or Bb2")
	return cmd
}

func parseTarget(name string) (*pitch.Note, error) {
	if name == "" {
		return nil, nil
	}
	n, err := pitch.ParseNote(name)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (a *app) listen(ctx context.Context, target *pitch.Note) error {
	ec, err := a.cfg.Engine()
	if err != nil {
		return err
	}

	interactive := logging.IsTerminal(os.Stdout)

	var (
		log    *slog.Logger
		closer io.Closer
	)
	if interactive {
		// The TUI owns the terminal, so logs only go to a file.
		level, err := a.cfg.Level()
		if err != nil {
			return err
		}
		log, closer, err = logging.Open(a.cfg.LogFile, level)
		if err != nil {
			return err
		}
	} else {
		log, closer, err = a.logger()
		if err != nil {
			return err
		}
	}
	defer closer.Close()

	src := audio.NewPortAudioSource(channels)
	src.SetAmplification(float32(a.cfg.Gain))

	eng := engine.New(src, ec, engine.WithLogger(log))
	defer eng.Close()

	if err := eng.Start(a.cfg.Session()); err != nil {
		if errors.Is(err, engine.ErrCaptureUnavailable) {
			return fmt.Errorf("%w (try `tunecoach analyze` on a recording)", err)
		}
		return err
	}

	if !interactive {
		return a.listenLines(ctx, eng, target)
	}

	p := tea.NewProgram(ui.NewModel(ec.Tier, target), tea.WithAltScreen(), tea.WithContext(ctx))
	eng.Subscribe(func(ev engine.Event) { p.Send(ev) })

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if dropped := src.Dropped(); dropped > 0 {
		log.Warn("capture blocks dropped", slog.Uint64("count", dropped))
	}
	return eng.Stop()
}

// listenLines prints events as text until interrupted or the input ends.
func (a *app) listenLines(ctx context.Context, eng *engine.Engine, target *pitch.Note) error {
	ended := make(chan error, 1)
	eng.Subscribe(func(ev engine.Event) {
		if line := formatEvent(ev, target); line != "" {
			fmt.Fprintln(a.stdout, line)
		}
		if e, ok := ev.(engine.CaptureEnded); ok {
			ended <- e.Err
		}
	}, engine.KindPitch, engine.KindOnset, engine.KindStalled, engine.KindRecovered, engine.KindEnded)

	select {
	case <-ctx.Done():
		return eng.Stop()
	case err := <-ended:
		return err
	}
}
