package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hanpama/socialgraph/internal/eventbus"
	"github.com/hanpama/socialgraph/internal/events"
	"github.com/hanpama/socialgraph/internal/executor"
	"github.com/hanpama/socialgraph/internal/language"
	"github.com/hanpama/socialgraph/internal/loader"
	"github.com/hanpama/socialgraph/internal/reqid"
	"github.com/hanpama/socialgraph/internal/schema"
)

// RequestIDHeader is read for an incoming request id and echoed on the response.
const RequestIDHeader = "X-Request-ID"

// Handler is an http.Handler that serves a GraphQL endpoint.
// It parses requests, validates documents against the schema, runs the
// executor with a fresh loader registry per document, and formats responses.
type Handler struct {
	exec   *executor.Executor
	schema *schema.Schema
	opt    Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// Presenter converts resolver errors. Nil keeps the executor default.
	Presenter executor.ErrorPresenter

	Logger *slog.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithErrorPresenter(p executor.ErrorPresenter) Option {
	return func(o *Options) { o.Presenter = p }
}
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a new GraphQL HTTP handler using the given runtime and schema.
// The schema must carry its parsed source, which requests are validated against.
func New(runtime executor.Runtime, s *schema.Schema, opts ...Option) (*Handler, error) {
	if s == nil || s.Source == nil {
		return nil, errNoSource
	}
	op := Options{Timeout: 10 * time.Second, Logger: slog.Default()}
	for _, f := range opts {
		f(&op)
	}
	var eopts []executor.Option
	if op.Presenter != nil {
		eopts = append(eopts, executor.WithErrorPresenter(op.Presenter))
	}
	return &Handler{exec: executor.NewExecutor(runtime, s, eopts...), schema: s, opt: op}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.NewContext(ctx, r.Header.Get(RequestIDHeader))
	w.Header().Set(RequestIDHeader, rid)
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
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
		writeJSON(w, status, errorResponse(language.NewError("method not allowed")), h.opt.Pretty)
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if berr.Message == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		h.opt.Logger.Debug("rejected graphql request", "request_id", rid, "error", berr.Message)
		writeJSON(w, status, errorResponse(berr), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if batch != nil {
		out := make([]specResult, len(batch))
		for i := range batch {
			out[i] = h.executeOne(ctx, batch[i])
		}
		writeJSON(w, status, out, h.opt.Pretty)
		return
	}

	if r.Method == http.MethodGet && isMutation(req) {
		status = http.StatusMethodNotAllowed
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, status, errorResponse(language.NewError(errGetMutationMessage)), h.opt.Pretty)
		return
	}
	writeJSON(w, status, h.executeOne(ctx, req), h.opt.Pretty)
}

// executeOne runs a single document. Every document gets its own loader
// registry, so cached rows never cross documents of a batch.
func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest) specResult {
	source := req.source()
	doc, errs := language.ParseAndValidate(h.schema.Source, source)
	if len(errs) > 0 {
		return validationResponse(errs)
	}
	if err := checkOperations(doc, req); err != nil {
		return errorResponse(err)
	}

	opDef := doc.Operations.ForName(req.OperationName)
	if opDef == nil && req.OperationName == "" && len(doc.Operations) == 1 {
		opDef = doc.Operations[0]
	}
	opName, opType := req.OperationName, ""
	if opDef != nil {
		opName, opType = opDef.Name, string(opDef.Operation)
	}

	ctx, _ = loader.NewContext(ctx)
	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: source, OperationName: opName, OperationType: opType})
	result := h.exec.ExecuteRequest(ctx, doc, req.OperationName, req.Variables, nil)
	errList := make([]error, len(result.Errors))
	for i := range result.Errors {
		errList[i] = result.Errors[i]
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         source,
		OperationName: opName,
		OperationType: opType,
		Errors:        errList,
		Duration:      time.Since(start),
	})
	return toSpecResult(result)
}

// checkOperations rejects documents that mix reads and writes, and documents
// sent under the "mutation" key that hold no mutation.
func checkOperations(doc *language.QueryDocument, req GraphQLRequest) *language.Error {
	var queries, mutations int
	for _, op := range doc.Operations {
		switch op.Operation {
		case language.Query:
			queries++
		case language.Mutation:
			mutations++
		}
	}
	if queries > 0 && mutations > 0 {
		return language.NewError("a document may contain queries or mutations, not both")
	}
	if req.Mutation != "" && mutations == 0 {
		return language.NewError("'mutation' must hold a mutation operation")
	}
	return nil
}

// ------------------ Request parsing ------------------

// GraphQLRequest accepts the document under either "query" or "mutation".
type GraphQLRequest struct {
	Query         string         `json:"query,omitempty"`
	Mutation      string         `json:"mutation,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

func (r GraphQLRequest) source() string {
	if r.Mutation != "" {
		return r.Mutation
	}
	return r.Query
}

func (r GraphQLRequest) check() *language.Error {
	switch {
	case r.Query != "" && r.Mutation != "":
		return language.NewError("send either 'query' or 'mutation', not both")
	case r.Query == "" && r.Mutation == "":
		return language.NewError("missing 'query'")
	}
	return nil
}

// isMutation reports whether req selects a mutation. Documents that do not
// parse are left to executeOne to report.
func isMutation(req GraphQLRequest) bool {
	if req.Mutation != "" {
		return true
	}
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		return false
	}
	for _, op := range doc.Operations {
		if op.Operation == language.Mutation && (req.OperationName == "" || op.Name == req.OperationName) {
			return true
		}
	}
	return false
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *language.Error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req := GraphQLRequest{Query: q.Get("query"), Mutation: q.Get("mutation"), OperationName: q.Get("operationName")}
		if err := req.check(); err != nil {
			return GraphQLRequest{}, nil, err
		}
		req.Variables = map[string]any{}
		if v := q.Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
				return GraphQLRequest{}, nil, language.NewError("invalid 'variables' JSON")
			}
		}
		return req, nil, nil
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return GraphQLRequest{}, nil, language.NewError("unsupported Content-Type")
	}
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return GraphQLRequest{}, nil, language.NewError("failed to read body")
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return GraphQLRequest{}, nil, language.NewError(errBodyTooLargeMessage)
	}

	// Try array (batch)
	if len(body) > 0 && body[0] == '[' {
		var arr []GraphQLRequest
		if err := json.Unmarshal(body, &arr); err != nil {
			return GraphQLRequest{}, nil, language.NewError("invalid JSON")
		}
		if len(arr) == 0 {
			return GraphQLRequest{}, nil, language.NewError("empty batch")
		}
		for _, req := range arr {
			if err := req.check(); err != nil {
				return GraphQLRequest{}, nil, err
			}
		}
		return GraphQLRequest{}, arr, nil
	}
	// Single
	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return GraphQLRequest{}, nil, language.NewError("invalid JSON")
	}
	if err := req.check(); err != nil {
		return GraphQLRequest{}, nil, err
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, nil, nil
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

func errorResponse(err *language.Error) specResult {
	return specResult{Errors: []specError{{Message: err.Message}}}
}

func validationResponse(errs language.ErrorList) specResult {
	out := specResult{Errors: make([]specError, len(errs))}
	for i, e := range errs {
		se := specError{Message: e.Message, Extensions: map[string]any{"code": "GRAPHQL_VALIDATION_FAILED"}}
		for _, l := range e.Locations {
			se.Locations = append(se.Locations, specLocation{Line: l.Line, Column: l.Column})
		}
		out.Errors[i] = se
	}
	return out
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
				case string, int:
					se.Path[j] = v
				default:
					se.Path[j] = toString(v)
				}
			}
		}
		out.Errors[i] = se
	}
	// Partial data is preserved alongside the errors.
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

const (
	errBodyTooLargeMessage = "body too large"
	errGetMutationMessage  = "mutations must be sent with POST"
)

var errNoSource = errors.New("server: schema has no parsed source to validate against")

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
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
