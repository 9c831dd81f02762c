package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2"

	eventbus "github.com/hanpama/gqlbind/internal/eventbus"
	events "github.com/hanpama/gqlbind/internal/events"
	executor "github.com/hanpama/gqlbind/internal/executor"
	introspection "github.com/hanpama/gqlbind/internal/introspection"
	language "github.com/hanpama/gqlbind/internal/language"
	reqid "github.com/hanpama/gqlbind/internal/reqid"
	schema "github.com/hanpama/gqlbind/internal/schema"
)

// Handler is an http.Handler that serves a GraphQL endpoint.
// It parses requests, runs the executor, and formats responses per GraphQL spec.
// Subscriptions are streamed as server-sent events.
type Handler struct {
	exec   *executor.Executor
	schema *schema.Schema
	opt    Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout. Subscriptions are not limited by it.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// ForwardedHeaders lists HTTP headers made available to resolvers
	// through ForwardedHeader. Header names are case-insensitive. Default
	// is none.
	ForwardedHeaders []string

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool

	// Introspection answers __schema and __type queries when true.
	Introspection bool

	Logger zerolog.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithForwardedHeaders(headers ...string) Option {
	return func(o *Options) { o.ForwardedHeaders = headers }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

func WithGraphiQL(enable bool) Option      { return func(o *Options) { o.GraphiQL = enable } }
func WithIntrospection(enable bool) Option { return func(o *Options) { o.Introspection = enable } }
func WithLogger(l zerolog.Logger) Option   { return func(o *Options) { o.Logger = l } }

// New creates a new GraphQL HTTP handler using the given runtime and schema.
func New(runtime executor.Runtime, sch *schema.Schema, opts ...Option) (*Handler, error) {
	if sch == nil {
		return nil, errors.New("server: nil schema")
	}
	op := Options{Timeout: 10 * time.Second, GraphiQL: true, Introspection: true, Logger: zerolog.Nop()}
	for _, f := range opts {
		f(&op)
	}
	exec := executor.NewExecutor(runtime, sch)
	if op.Introspection {
		iw := introspection.Wrap(runtime, sch)
		exec = executor.NewExecutor(iw.Runtime, iw.Schema)
	}
	return &Handler{exec: exec, schema: sch, opt: op}, nil
}

type headersKey struct{}

// ForwardedHeader returns a header of the HTTP request that carried the
// operation, if the handler was configured to forward it.
func ForwardedHeader(ctx context.Context, name string) string {
	h, _ := ctx.Value(headersKey{}).(http.Header)
	return h.Get(name)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, rid := reqid.WithID(r.Context(), r.Header.Get(reqid.Header))
	w.Header().Set(reqid.Header, rid)
	log := h.opt.Logger.With().Str("request_id", rid).Logger()

	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.RequestStart{Method: r.Method, Path: r.URL.Path})
	defer func() {
		eventbus.Publish(ctx, events.RequestFinish{Method: r.Method, Path: r.URL.Path, Status: status, Duration: time.Since(start)})
		log.Debug().Str("method", r.Method).Int("status", status).Dur("took", time.Since(start)).Msg("http request")
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse(nil, &language.Error{Message: "method not allowed"}), h.opt.Pretty)
		return
	}

	// Serve GraphiQL IDE when enabled and the client expects HTML.
	if r.Method == http.MethodGet && h.opt.GraphiQL && acceptsHTML(r.Header.Get("Accept")) && r.URL.Query().Get("query") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(graphiqlPage)
		return
	}

	if len(h.opt.ForwardedHeaders) > 0 {
		forwarded := http.Header{}
		for _, name := range h.opt.ForwardedHeaders {
			if v := r.Header.Values(name); len(v) > 0 {
				forwarded[http.CanonicalHeaderKey(name)] = v
			}
		}
		ctx = context.WithValue(ctx, headersKey{}, forwarded)
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if berr.Message == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse(nil, berr), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if batch == nil {
		doc, opType, gerr := h.load(req)
		if gerr == nil && opType == string(language.Subscription) {
			status = h.stream(ctx, w, r, req, doc, log)
			return
		}
		if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
			defer cancel()
		}
		writeJSON(w, status, h.executeOne(ctx, req, doc, opType, gerr), h.opt.Pretty)
		return
	}

	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	out := make([]any, len(batch))
	for i := range batch {
		doc, opType, gerr := h.load(batch[i])
		if gerr == nil && opType == string(language.Subscription) {
			gerr = &language.Error{Message: "subscriptions cannot be batched"}
		}
		out[i] = h.executeOne(ctx, batch[i], doc, opType, gerr)
	}
	writeJSON(w, status, out, h.opt.Pretty)
}

// load parses and validates the query and names the type of the operation
// to run.
func (h *Handler) load(req GraphQLRequest) (*language.QueryDocument, string, *language.Error) {
	var doc *language.QueryDocument
	if h.schema.AST != nil {
		d, errs := gqlparser.LoadQuery(h.schema.AST, req.Query)
		if len(errs) > 0 {
			return nil, "", errs[0]
		}
		doc = d
	} else {
		d, err := language.ParseQuery(req.Query)
		if err != nil {
			var ge *language.Error
			if errors.As(err, &ge) {
				return nil, "", ge
			}
			return nil, "", &language.Error{Message: err.Error()}
		}
		doc = d
	}

	opDef := doc.Operations.ForName(req.OperationName)
	if opDef == nil && req.OperationName == "" && len(doc.Operations) == 1 {
		opDef = doc.Operations[0]
	}
	if opDef == nil {
		return doc, "", nil
	}
	return doc, string(opDef.Operation), nil
}

func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest, doc *language.QueryDocument, opType string, gerr *language.Error) any {
	if gerr != nil {
		return errorResponse(nil, gerr)
	}
	start := time.Now()
	op := events.Operation{Name: req.OperationName, Type: opType, Query: req.Query}
	eventbus.Publish(ctx, events.OperationStart{Operation: op})
	result := h.exec.ExecuteRequest(ctx, doc, req.OperationName, req.Variables, nil)
	eventbus.Publish(ctx, events.OperationFinish{
		Operation: op,
		Errors:    lo.Map(result.Errors, func(e executor.GraphQLError, _ int) error { return e }),
		Duration:  time.Since(start),
	})
	if len(result.Errors) > 0 {
		return toSpecResult(result)
	}
	return result
}

// stream runs a subscription and writes every result as a "next" event,
// followed by "complete". The response ends when the source stream ends or
// the client goes away.
func (h *Handler) stream(ctx context.Context, w http.ResponseWriter, r *http.Request, req GraphQLRequest, doc *language.QueryDocument, log zerolog.Logger) int {
	flusher, ok := w.(http.Flusher)
	if !ok || !acceptsEventStream(r.Header.Get("Accept")) {
		status := http.StatusNotAcceptable
		writeJSON(w, status, errorResponse(nil, &language.Error{Message: "subscriptions require Accept: text/event-stream"}), h.opt.Pretty)
		return status
	}

	start := time.Now()
	op := events.Operation{Name: req.OperationName, Type: string(language.Subscription), Query: req.Query}
	eventbus.Publish(ctx, events.OperationStart{Operation: op})
	results, err := h.exec.Subscribe(ctx, doc, req.OperationName, req.Variables)
	if err != nil {
		eventbus.Publish(ctx, events.OperationFinish{Operation: op, Errors: []error{err}, Duration: time.Since(start)})
		writeJSON(w, http.StatusOK, errorResponse(nil, &language.Error{Message: err.Error()}), h.opt.Pretty)
		return http.StatusOK
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	n := 0
	for res := range results {
		var payload any = res
		if len(res.Errors) > 0 {
			payload = toSpecResult(res)
		}
		if err := writeEvent(w, "next", payload); err != nil {
			log.Debug().Err(err).Msg("subscription client gone")
			break
		}
		flusher.Flush()
		n++
	}
	_, _ = io.WriteString(w, "event: complete\ndata: \n\n")
	flusher.Flush()

	eventbus.Publish(ctx, events.OperationFinish{Operation: op, Events: n, Duration: time.Since(start)})
	log.Debug().Int("events", n).Msg("subscription finished")
	return http.StatusOK
}

func writeEvent(w io.Writer, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *language.Error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid 'variables' JSON"}
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct == "" || ct == "application/json" || strings.HasPrefix(ct, "application/json;") {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = io.LimitReader(r.Body, maxBody+1)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return GraphQLRequest{}, nil, &language.Error{Message: "failed to read body"}
		}
		defer r.Body.Close()
		if maxBody > 0 && int64(len(body)) > maxBody {
			return GraphQLRequest{}, nil, &language.Error{Message: errBodyTooLargeMessage}
		}

		// Try array (batch)
		var arr []GraphQLRequest
		if len(body) > 0 && body[0] == '[' {
			if err := json.Unmarshal(body, &arr); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
			}
			if len(arr) == 0 {
				return GraphQLRequest{}, nil, &language.Error{Message: "empty batch"}
			}
			return GraphQLRequest{}, arr, nil
		}
		// Single
		var req GraphQLRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
		}
		if req.Query == "" {
			return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
		}
		if req.Variables == nil {
			req.Variables = map[string]any{}
		}
		return req, nil, nil
	}

	return GraphQLRequest{}, nil, &language.Error{Message: "unsupported Content-Type"}
}

// ------------------ Response formatting ------------------

type specLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type specError struct {
	Message    string         `json:"message"`
	Locations  []specLocation `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type specResult struct {
	Data   any         `json:"data"`
	Errors []specError `json:"errors,omitempty"`
}

func errorResponse(data any, err *language.Error) specResult {
	se := specError{Message: err.Message, Extensions: err.Extensions}
	for _, loc := range err.Locations {
		se.Locations = append(se.Locations, specLocation{Line: loc.Line, Column: loc.Column})
	}
	return specResult{Data: data, Errors: []specError{se}}
}

func toSpecResult(res *executor.ExecutionResult) specResult {
	out := specResult{Data: res.Data}
	if len(res.Errors) == 0 {
		return out
	}
	out.Errors = make([]specError, len(res.Errors))
	for i, e := range res.Errors {
		se := specError{Message: e.Message, Extensions: e.Extensions}
		if len(e.Path) > 0 {
			se.Path = make([]any, len(e.Path))
			for j, pe := range e.Path {
				switch v := pe.(type) {
				case string:
					se.Path[j] = v
				case int:
					se.Path[j] = v
				default:
					se.Path[j] = toString(v)
				}
			}
		}
		out.Errors[i] = se
	}
	// Data may be partially present next to errors; it is preserved.
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func toString(v any) string { b, _ := json.Marshal(v); return string(b) }

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
	w.Header().Set("Access-Control-Expose-Headers", reqid.Header)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func acceptsHTML(accept string) bool { return accepts(accept, "text/html", true) }

func acceptsEventStream(accept string) bool { return accepts(accept, "text/event-stream", false) }

func accepts(accept, mediaType string, wildcard bool) bool {
	if accept == "" {
		return false
	}
	for _, p := range strings.Split(accept, ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, mediaType) || (wildcard && p == "*/*") {
			return true
		}
	}
	return false
}
