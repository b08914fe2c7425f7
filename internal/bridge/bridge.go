// Package bridge exposes an engine to browser or mobile clients over socket.io.
// Engine events are broadcast to every connected client; clients can start and
// stop the session and, in feed mode, stream their own PCM into it.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/0xlemi/tunecoach/internal/audio"
	"github.com/0xlemi/tunecoach/internal/engine"
	"github.com/0xlemi/tunecoach/internal/logging"
)

const namespace = "/"

// Outgoing event names.
const (
	EventNote       = "NOTE_EVENT"
	EventOnset      = "ONSET_EVENT"
	EventPCM        = "PCM_DATA"
	EventStalled    = "STREAM_STALLED"
	EventRecovered  = "STREAM_RECOVERED"
	EventEnded      = "CAPTURE_ENDED"
	EventStartError = "START_ERROR"
	EventStopError  = "STOP_ERROR"
	EventPCMError   = "PCM_ERROR"
	EventState      = "STATE"
)

// Incoming event names.
const (
	CommandStart = "start"
	CommandStop  = "stop"
	CommandPCM   = "pcm"
)

const pushTimeout = 2 * time.Second

var ErrFeedDisabled = errors.New("pcm feed is not enabled")

// broadcaster is the part of the socket.io server the bridge publishes through.
type broadcaster interface {
	BroadcastToNamespace(namespace string, event string, args ...interface{}) bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithFeed accepts client PCM pushes into feed, which must be the engine's
// source.
func WithFeed(feed *audio.FeedSource) Option {
	return func(s *Server) { s.feed = feed }
}

// Server binds one engine to a socket.io endpoint.
type Server struct {
	eng      *engine.Engine
	defaults engine.SessionConfig
	feed     *audio.FeedSource
	log      *slog.Logger

	sio *socketio.Server
	out broadcaster
	sub *engine.Subscription
}

// New creates a bridge. defaults fill in start requests that omit a field.
func New(eng *engine.Engine, defaults engine.SessionConfig, opts ...Option) *Server {
	s := &Server{
		eng:      eng,
		defaults: defaults,
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.sio = socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{CheckOrigin: allowOrigin},
			&polling.Transport{CheckOrigin: allowOrigin},
		},
	})
	s.out = s.sio
	s.routes()
	return s
}

func allowOrigin(*http.Request) bool {
	return true
}

func (s *Server) routes() {
	s.sio.OnConnect(namespace, func(conn socketio.Conn) error {
		s.log.Info("client connected", slog.String("id", conn.ID()), slog.String("remote", conn.RemoteAddr().String()))
		conn.Emit(EventState, StatePayload{State: s.eng.State().String(), Tier: s.eng.Config().Tier.String()})
		return nil
	})

	s.sio.OnEvent(namespace, CommandStart, func(conn socketio.Conn, req StartRequest) {
		if err := s.start(req); err != nil {
			s.log.Warn("start rejected", slog.String("id", conn.ID()), slog.Any("error", err))
			conn.Emit(EventStartError, ErrorPayload{Message: err.Error()})
		}
	})

	s.sio.OnEvent(namespace, CommandStop, func(conn socketio.Conn) {
		if err := s.eng.Stop(); err != nil {
			s.log.Warn("stop failed", slog.String("id", conn.ID()), slog.Any("error", err))
			conn.Emit(EventStopError, ErrorPayload{Message: err.Error()})
		}
	})

	s.sio.OnEvent(namespace, CommandPCM, func(conn socketio.Conn, push PCMPush) {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := s.pushPCM(ctx, push); err != nil {
			conn.Emit(EventPCMError, ErrorPayload{Message: err.Error()})
		}
	})

	s.sio.OnError(namespace, func(conn socketio.Conn, err error) {
		s.log.Warn("socket error", slog.Any("error", err))
	})

	s.sio.OnDisconnect(namespace, func(conn socketio.Conn, reason string) {
		s.log.Info("client disconnected", slog.String("id", conn.ID()), slog.String("reason", reason))
	})
}

// start begins a session with the request, falling back to the defaults.
func (s *Server) start(req StartRequest) error {
	sc := s.defaults
	if req.SampleRate > 0 {
		sc.SampleRate = req.SampleRate
	}
	if req.BufferSize > 0 {
		sc.BlockSize = req.BufferSize
	}
	return s.eng.Start(sc)
}

func (s *Server) pushPCM(ctx context.Context, push PCMPush) error {
	if s.feed == nil {
		return ErrFeedDisabled
	}
	return s.feed.Push(ctx, audio.Block{Samples: push.Samples, SampleRate: push.SampleRate})
}

// attach subscribes to the engine and broadcasts everything it publishes.
func (s *Server) attach() {
	s.sub = s.eng.Subscribe(func(ev engine.Event) {
		name, payload, ok := Payload(ev)
		if !ok {
			return
		}
		s.out.BroadcastToNamespace(namespace, name, payload)
	})
}

func (s *Server) detach() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
}

// Handler returns the HTTP handler serving the socket.io endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", s.sio)
	return mux
}

// ListenAndServe runs the bridge on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.attach()
	defer s.detach()

	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Serve returns an error once Close has shut the engine down.
		if err := s.sio.Serve(); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.log.Info("event bridge listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if cerr := s.sio.Close(); err == nil {
			err = cerr
		}
		return err
	})

	err := g.Wait()
	if stopErr := s.eng.Stop(); err == nil {
		err = stopErr
	}
	return err
}
