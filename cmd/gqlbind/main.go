package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/hanpama/gqlbind/internal/app"
	"github.com/hanpama/gqlbind/internal/bookstore"
	"github.com/hanpama/gqlbind/internal/config"
	"github.com/hanpama/gqlbind/internal/schema"
	"github.com/hanpama/gqlbind/internal/wiring"
)

const rootUsage = `gqlbind: schema-first GraphQL bound to Go types

USAGE:
  gqlbind <command> [flags]

COMMANDS:
  serve    Run the bookstore GraphQL server
  check    Bind a schema to the bookstore resolvers and report every problem
  render   Print the schema with generated connection types
  help     Show help for any command
`

const serveUsage = `serve FLAGS:
  -config <file>                   yaml config file
  -env-file <file>                 dotenv file (default: .env)
  -server.addr <addr>              HTTP listen address (default: :8080)
  -server.pretty                   Pretty-print JSON responses
  -server.timeout <duration>       Per-request timeout, e.g. 10s (default: 10s)
  -graphql.schema <file>           SDL file replacing the bookstore schema. Repeatable
  -graphql.introspection <bool>    Enable introspection (default: true)
  -graphql.allow-unimplemented     Serve fields without a resolver as errors
  -log.level <level>               debug, info, warn, error (default: info)
  -otel.endpoint <addr>            OTLP collector endpoint
  -otel.service <name>             OpenTelemetry service name (default: gqlbind)
Settings are also read from GQLBIND_ variables, e.g. GQLBIND_SERVER_ADDR.
`

const checkUsage = `check FLAGS:
  -schema <file>   SDL file to check instead of the bookstore schema. Repeatable
  (Exits non-zero when a field cannot be bound)
`

const renderUsage = `render FLAGS:
  -schema <file>   SDL file to render instead of the bookstore schema. Repeatable
  -out <file>      Write to file (default: stdout)
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return errors.New("missing command")
	}
	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs, stderr)
	case "check":
		return cmdCheck(cmdArgs, stdout, stderr)
	case "render":
		return cmdRender(cmdArgs, stdout, stderr)
	case "help", "-h", "-help", "--help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "check":
		fmt.Fprint(stdout, checkUsage)
	case "render":
		fmt.Fprint(stdout, renderUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// serveConfig loads the configuration and applies the flags that were set
// on the command line over it.
func serveConfig(args []string) (*config.Config, error) {
	var (
		file, envFile              = "", ".env"
		addr, level, otelEndpoint  string
		otelService                string
		pretty, allowUnimplemented bool
		introspection              bool
		timeout                    time.Duration
		schemas                    stringListFlag
	)
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&file, "config", file, "yaml config file")
	fs.StringVar(&envFile, "env-file", envFile, "dotenv file")
	fs.StringVar(&addr, "server.addr", "", "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", false, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", 0, "Per-request timeout")
	fs.Var(&schemas, "graphql.schema", "SDL file")
	fs.BoolVar(&introspection, "graphql.introspection", true, "Enable introspection")
	fs.BoolVar(&allowUnimplemented, "graphql.allow-unimplemented", false, "Serve fields without a resolver as errors")
	fs.StringVar(&level, "log.level", "", "Log level")
	fs.StringVar(&otelEndpoint, "otel.endpoint", "", "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", "", "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts := []config.Option{config.WithEnvFile(envFile)}
	if file != "" {
		opts = append(opts, config.WithFile(file))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server.addr":
			cfg.Server.Addr = addr
		case "server.pretty":
			cfg.Server.Pretty = pretty
		case "server.timeout":
			cfg.Server.Timeout = timeout
		case "graphql.schema":
			cfg.GraphQL.Schema = schemas
		case "graphql.introspection":
			cfg.GraphQL.Introspection = introspection
		case "graphql.allow-unimplemented":
			cfg.GraphQL.AllowUnimplemented = allowUnimplemented
		case "log.level":
			cfg.Log.Level = level
		case "otel.endpoint":
			cfg.Otel.Endpoint = otelEndpoint
		case "otel.service":
			cfg.Otel.Service = otelService
		}
	})
	return cfg, cfg.Validate()
}

func cmdServe(args []string, stderr io.Writer) error {
	cfg, err := serveConfig(args)
	if err != nil {
		fmt.Fprint(stderr, serveUsage)
		return err
	}
	fxApp := fx.New(app.Module(cfg))
	if err := fxApp.Err(); err != nil {
		return err
	}
	fxApp.Run()
	return nil
}

func cmdCheck(args []string, stdout, stderr io.Writer) error {
	var schemas stringListFlag
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&schemas, "schema", "SDL file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, checkUsage)
		return err
	}

	sch, err := app.LoadSchema(schemas...)
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	w, err := bookstore.Wire(sch, bookstore.NewStore(), zerolog.Nop(), nil, wiring.WithErrorCollection())
	var errs wiring.BuildErrors
	if errors.As(err, &errs) {
		for _, e := range errs {
			fmt.Fprintln(stderr, e)
		}
		return err
	}
	if err != nil {
		return err
	}

	dict := w.Dictionary()
	names := dict.Names()
	slices.Sort(names)
	for _, name := range names {
		t, _ := dict.TypeFor(name)
		fmt.Fprintf(stdout, "%-16s %s\n", name, t)
	}
	fmt.Fprintf(stdout, "ok: %d types bound\n", len(names))
	return nil
}

func cmdRender(args []string, stdout, stderr io.Writer) error {
	var schemas stringListFlag
	outFile := ""
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&schemas, "schema", "SDL file")
	fs.StringVar(&outFile, "out", outFile, "Write to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, renderUsage)
		return err
	}

	sch, err := app.LoadSchema(schemas...)
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	sdl := schema.Render(sch)
	if outFile == "" {
		_, err := io.WriteString(stdout, sdl)
		return err
	}
	return os.WriteFile(outFile, []byte(sdl), 0o644)
}
