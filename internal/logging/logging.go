// Package logging builds the zerolog logger shared by the server, the wiring
// builder and the CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects how records are written.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Rotate configures a rotated log file written next to the main output.
type Rotate struct {
	Filename   string
	MaxSize    int // megabytes
	MaxAge     int // days
	MaxBackups int
	Compress   bool
}

type options struct {
	out    io.Writer
	level  zerolog.Level
	format Format
	rotate *Rotate
}

type Option func(*options)

func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

func WithLevel(l zerolog.Level) Option { return func(o *options) { o.level = l } }

func WithFormat(f Format) Option { return func(o *options) { o.format = f } }

// WithFile also writes JSON records to a rotated file. An empty filename
// leaves the file out.
func WithFile(r Rotate) Option {
	return func(o *options) {
		if r.Filename == "" {
			o.rotate = nil
			return
		}
		if r.MaxSize == 0 {
			r.MaxSize = 100
		}
		if r.MaxAge == 0 {
			r.MaxAge = 7
		}
		if r.MaxBackups == 0 {
			r.MaxBackups = 3
		}
		o.rotate = &r
	}
}

// New returns a logger writing to stderr at info level unless configured
// otherwise.
func New(opts ...Option) zerolog.Logger {
	o := options{out: os.Stderr, level: zerolog.InfoLevel, format: FormatConsole}
	for _, opt := range opts {
		opt(&o)
	}

	out := o.out
	if o.format == FormatConsole {
		out = console(o.out)
	}
	if o.rotate != nil {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   o.rotate.Filename,
			MaxSize:    o.rotate.MaxSize,
			MaxAge:     o.rotate.MaxAge,
			MaxBackups: o.rotate.MaxBackups,
			Compress:   o.rotate.Compress,
			LocalTime:  true,
		})
	}
	return zerolog.New(out).Level(o.level).With().Timestamp().Logger()
}

func console(w io.Writer) zerolog.ConsoleWriter {
	c := zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime, NoColor: w != os.Stderr && w != os.Stdout}
	c.FormatLevel = func(i any) string {
		return strings.ToUpper(fmt.Sprintf("| %-5s|", i))
	}
	c.FormatFieldName = func(i any) string { return fmt.Sprintf("%s=", i) }
	return c
}

// ParseLevel accepts zerolog level names; an empty string is info.
func ParseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// ParseFormat accepts "console" and "json"; an empty string is console.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatConsole:
		return FormatConsole, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown log format %q", s)
}
