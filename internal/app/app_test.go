package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/hanpama/gqlbind/internal/bookstore"
	"github.com/hanpama/gqlbind/internal/config"
	"github.com/hanpama/gqlbind/internal/server"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(config.WithEnvFile(""))
	require.NoError(t, err)
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Log.Level = "disabled"
	return cfg
}

func post(t *testing.T, h http.Handler, query string, header http.Header) map[string]any {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestModule(t *testing.T) {
	var h *server.Handler
	app := fxtest.New(t, Module(testConfig(t)), fx.Populate(&h))
	app.RequireStart()
	defer app.RequireStop()

	out := post(t, h, `{ book(id: "b2") { title author { name } } }`, nil)
	require.Equal(t, map[string]any{
		"book": map[string]any{"title": "Dune Messiah", "author": map[string]any{"name": "FRANK HERBERT"}},
	}, out["data"])

	out = post(t, h, `{ stats { authors } }`, http.Header{RoleHeader: {"admin"}})
	require.Nil(t, out["errors"])
	require.Equal(t, map[string]any{"stats": map[string]any{"authors": float64(3)}}, out["data"])

	out = post(t, h, `{ stats { authors } }`, nil)
	require.NotNil(t, out["errors"])
}

func TestCustomSchemaWithUnimplementedFields(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "bookstore.graphql")
	extra := filepath.Join(dir, "extra.graphql")
	require.NoError(t, os.WriteFile(base, []byte(bookstore.SDL), 0o600))
	require.NoError(t, os.WriteFile(extra, []byte("extend type Query { motd: String }\n"), 0o600))

	cfg := testConfig(t)
	cfg.GraphQL.Schema = []string{base, extra}

	var h *server.Handler
	err := fx.New(Module(cfg), fx.Populate(&h)).Err()
	require.Error(t, err)
	require.Contains(t, err.Error(), "motd")

	cfg.GraphQL.AllowUnimplemented = true
	app := fxtest.New(t, Module(cfg), fx.Populate(&h))
	app.RequireStart()
	defer app.RequireStop()

	out := post(t, h, `{ motd book(id: "b1") { title } }`, nil)
	errs, ok := out["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	require.True(t, strings.Contains(errs[0].(map[string]any)["message"].(string), "Query.motd is not implemented"))
	require.Equal(t, map[string]any{"motd": nil, "book": map[string]any{"title": "Dune"}}, out["data"])
}

func TestLoadSchema(t *testing.T) {
	s, err := LoadSchema()
	require.NoError(t, err)
	require.NotNil(t, s.Types["BookConnection"])
	require.NotNil(t, s.Types["BookConnectionEdge"])

	_, err = LoadSchema(filepath.Join(t.TempDir(), "missing.graphql"))
	require.ErrorContains(t, err, "reading schema")
}
