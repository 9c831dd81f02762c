package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/gqlbind/internal/bookstore"
)

func runCmd(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err = run(args, &out, &errOut)
	return out.String(), errOut.String(), err
}

func TestHelp(t *testing.T) {
	out, _, err := runCmd(t, "help", "serve")
	require.NoError(t, err)
	require.Contains(t, out, "serve FLAGS")

	out, _, err = runCmd(t, "help")
	require.NoError(t, err)
	require.Contains(t, out, "COMMANDS")

	_, _, err = runCmd(t, "help", "nope")
	require.ErrorContains(t, err, "unknown help topic")
}

func TestUnknownCommand(t *testing.T) {
	_, stderr, err := runCmd(t, "frobnicate")
	require.ErrorContains(t, err, `unknown command "frobnicate"`)
	require.Contains(t, stderr, "USAGE")

	_, _, err = runCmd(t)
	require.ErrorContains(t, err, "missing command")
}

func TestRender(t *testing.T) {
	out, _, err := runCmd(t, "render")
	require.NoError(t, err)
	require.Contains(t, out, "type BookConnection {")
	require.Contains(t, out, "type BookConnectionEdge {")
	require.Contains(t, out, "type PageInfo {")

	file := filepath.Join(t.TempDir(), "out.graphql")
	_, _, err = runCmd(t, "render", "-out", file)
	require.NoError(t, err)
	b, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Equal(t, out, string(b))
}

func TestCheck(t *testing.T) {
	out, _, err := runCmd(t, "check")
	require.NoError(t, err)
	require.Contains(t, out, "ok:")
	require.Contains(t, out, "bookstore.Book")

	dir := t.TempDir()
	base := filepath.Join(dir, "bookstore.graphql")
	extra := filepath.Join(dir, "extra.graphql")
	require.NoError(t, os.WriteFile(base, []byte(bookstore.SDL), 0o600))
	require.NoError(t, os.WriteFile(extra, []byte("extend type Query { motd: String }\nextend type Book { pages: Int }\n"), 0o600))

	_, stderr, err := runCmd(t, "check", "-schema", base, "-schema", extra)
	require.ErrorContains(t, err, "2 wiring errors")
	require.Contains(t, stderr, "Query.motd")
	require.Contains(t, stderr, "Book.pages")

	_, _, err = runCmd(t, "check", "-schema", filepath.Join(dir, "missing.graphql"))
	require.ErrorContains(t, err, "build schema")
}

func TestServeConfig(t *testing.T) {
	t.Setenv("GQLBIND_SERVER_ADDR", ":7000")
	t.Setenv("GQLBIND_LOG_LEVEL", "warn")

	cfg, err := serveConfig([]string{"-env-file", "", "-server.timeout", "2s"})
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Server.Addr)
	require.Equal(t, 2*time.Second, cfg.Server.Timeout)
	require.Equal(t, "warn", cfg.Log.Level)
	require.True(t, cfg.GraphQL.Introspection)

	cfg, err = serveConfig([]string{"-env-file", "", "-server.addr", ":7001", "-graphql.introspection=false", "-graphql.schema", "a.graphql"})
	require.NoError(t, err)
	require.Equal(t, ":7001", cfg.Server.Addr)
	require.False(t, cfg.GraphQL.Introspection)
	require.Equal(t, []string{"a.graphql"}, cfg.GraphQL.Schema)

	_, err = serveConfig([]string{"-env-file", "", "-server.timeout", "-1s"})
	require.ErrorContains(t, err, "server.timeout")

	_, err = serveConfig([]string{"-bogus"})
	require.Error(t, err)
}
