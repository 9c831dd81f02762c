// Package app assembles the gqlbind server from its configuration with fx.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/hanpama/gqlbind/internal/binder"
	"github.com/hanpama/gqlbind/internal/bookstore"
	"github.com/hanpama/gqlbind/internal/config"
	"github.com/hanpama/gqlbind/internal/connection"
	"github.com/hanpama/gqlbind/internal/eventbus"
	"github.com/hanpama/gqlbind/internal/logging"
	"github.com/hanpama/gqlbind/internal/otel"
	schema "github.com/hanpama/gqlbind/internal/schema"
	"github.com/hanpama/gqlbind/internal/sdlsource"
	"github.com/hanpama/gqlbind/internal/server"
	"github.com/hanpama/gqlbind/internal/wiring"
)

// RoleHeader carries the caller role checked by @auth.
const RoleHeader = "X-Role"

// Module provides every component of the server for cfg. The HTTP listener
// starts with the fx application.
func Module(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			NewLogger,
			NewBus,
			NewTelemetry,
			NewSchema,
			bookstore.Seeded,
			NewWiring,
			NewHandler,
			NewHTTPServer,
		),
		fx.WithLogger(func(log zerolog.Logger) fxevent.Logger { return &eventLogger{log: log} }),
		fx.Invoke(func(*http.Server) {}),
	)
}

func NewLogger(cfg *config.Config) (zerolog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return zerolog.Nop(), err
	}
	opts := []logging.Option{logging.WithLevel(level), logging.WithFormat(format)}
	if cfg.Log.File != "" {
		opts = append(opts, logging.WithFile(logging.Rotate{Filename: cfg.Log.File}))
	}
	return logging.New(opts...), nil
}

// NewBus installs a fresh process-wide event bus.
func NewBus() *eventbus.Bus {
	b := eventbus.New()
	eventbus.Use(b)
	return b
}

// Telemetry is present once tracing is set up, so that components asking
// for it publish their events to an attached tracer.
type Telemetry struct{}

func NewTelemetry(lc fx.Lifecycle, cfg *config.Config, _ *eventbus.Bus, log zerolog.Logger) (Telemetry, error) {
	shutdown, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return Telemetry{}, fmt.Errorf("otel setup: %w", err)
	}
	if cfg.Otel.Endpoint != "" {
		log.Info().Str("endpoint", cfg.Otel.Endpoint).Str("service", cfg.Otel.Service).Msg("tracing enabled")
	}
	lc.Append(fx.StopHook(shutdown))
	return Telemetry{}, nil
}

// NewSchema loads the configured SDL files, or the bookstore schema when
// none are configured.
func NewSchema(cfg *config.Config) (*schema.Schema, error) {
	return LoadSchema(cfg.GraphQL.Schema...)
}

// LoadSchema builds a schema from SDL files and directories with
// connection types generated. Without paths it returns the bookstore schema.
func LoadSchema(paths ...string) (*schema.Schema, error) {
	if len(paths) == 0 {
		return bookstore.Schema()
	}
	d, err := sdlsource.NewFileSystem(paths...)
	if err != nil {
		return nil, err
	}
	sources, err := sdlsource.Load(context.Background(), d)
	if err != nil {
		return nil, err
	}
	return schema.Build(sources, connection.Factory{})
}

// NewWiring binds the schema to the bookstore resolvers.
func NewWiring(cfg *config.Config, sch *schema.Schema, store *bookstore.Store, log zerolog.Logger, _ Telemetry) (*wiring.Wiring, error) {
	role := func(ctx context.Context) string { return server.ForwardedHeader(ctx, RoleHeader) }
	var opts []wiring.Option
	if cfg.GraphQL.CollectErrors {
		opts = append(opts, wiring.WithErrorCollection())
	}
	if cfg.GraphQL.AllowUnimplemented {
		opts = append(opts, wiring.WithMissingFieldHandler(notImplemented))
	}
	return bookstore.Wire(sch, store, log.With().Str("component", "wiring").Logger(), role, opts...)
}

func notImplemented(env *binder.Environment) (any, error) {
	return nil, fmt.Errorf("%s.%s is not implemented", env.TypeName, env.Field.Name)
}

func NewHandler(cfg *config.Config, w *wiring.Wiring, log zerolog.Logger) (*server.Handler, error) {
	opts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithGraphiQL(cfg.Server.GraphiQL),
		server.WithIntrospection(cfg.GraphQL.Introspection),
		server.WithForwardedHeaders(RoleHeader),
		server.WithLogger(log.With().Str("component", "server").Logger()),
	}
	if cfg.Server.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if len(cfg.Server.CORS) > 0 {
		opts = append(opts, server.WithCORS(cfg.Server.CORS...))
	}
	return server.New(w, w.Schema(), opts...)
}

// NewHTTPServer serves the handler on /graphql. The listener is opened on
// start so that a bad address fails the application.
func NewHTTPServer(lc fx.Lifecycle, cfg *config.Config, h *server.Handler, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/graphql", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info().Str("addr", ln.Addr().String()).Msg("GraphQL server listening")
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("server stopped")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("shutting down")
			return srv.Shutdown(ctx)
		},
	})
	return srv
}

// eventLogger reports fx lifecycle problems through zerolog.
type eventLogger struct{ log zerolog.Logger }

func (l *eventLogger) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.Provided:
		if e.Err != nil {
			l.log.Error().Err(e.Err).Str("constructor", e.ConstructorName).Msg("provide failed")
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			l.log.Error().Err(e.Err).Str("function", e.FunctionName).Msg("invoke failed")
		}
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			l.log.Error().Err(e.Err).Str("callee", e.FunctionName).Msg("start hook failed")
		}
	case *fxevent.Started:
		if e.Err != nil {
			l.log.Error().Err(e.Err).Msg("start failed")
		} else {
			l.log.Debug().Msg("started")
		}
	case *fxevent.Stopped:
		if e.Err != nil {
			l.log.Error().Err(e.Err).Msg("stop failed")
		}
	}
}
