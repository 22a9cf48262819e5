// Package rest serves the CRUD routes of the social graph. Handlers call the
// integrity manager directly; there is no batching on this surface.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hanpama/socialgraph/internal/apperr"
	"github.com/hanpama/socialgraph/internal/entity"
	"github.com/hanpama/socialgraph/internal/eventbus"
	"github.com/hanpama/socialgraph/internal/events"
	"github.com/hanpama/socialgraph/internal/integrity"
	"github.com/hanpama/socialgraph/internal/reqid"
)

const defaultMaxBody = 1 << 20

type Handler struct {
	m       *integrity.Manager
	mux     *http.ServeMux
	logger  *slog.Logger
	maxBody int64
	pretty  bool
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option { return func(h *Handler) { h.logger = l } }
func WithMaxBodyBytes(n int64) Option  { return func(h *Handler) { h.maxBody = n } }
func WithPretty() Option               { return func(h *Handler) { h.pretty = true } }

// New registers every route on a fresh ServeMux.
func New(m *integrity.Manager, opts ...Option) *Handler {
	h := &Handler{m: m, mux: http.NewServeMux(), logger: slog.Default(), maxBody: defaultMaxBody}
	for _, o := range opts {
		o(h)
	}
	h.routes()
	return h
}

func (h *Handler) routes() {
	m := h.m
	mux := h.mux

	mux.HandleFunc("GET /users", handle(h, "users.list", func(w http.ResponseWriter, r *http.Request) (any, error) {
		rows, err := m.ListUsers(r.Context())
		return list(rows, err)
	}))
	mux.HandleFunc("GET /users/{id}", handle(h, "users.get", func(w http.ResponseWriter, r *http.Request) (any, error) {
		return m.GetUser(r.Context(), r.PathValue("id"))
	}))
	mux.HandleFunc("POST /users", handle(h, "users.create", func(w http.ResponseWriter, r *http.Request) (any, error) {
		in, err := decode[entity.CreateUser](h, w, r, "users.create")
		if err != nil {
			return nil, err
		}
		return m.CreateUser(r.Context(), in)
	}))
	mux.HandleFunc("PATCH /users/{id}", handle(h, "users.change", func(w http.ResponseWriter, r *http.Request) (any, error) {
		patch, err := decode[entity.UserPatch](h, w, r, "users.change")
		if err != nil {
			return nil, err
		}
		row, err := m.ChangeUser(r.Context(), r.PathValue("id"), patch)
		return writeTarget(row, err)
	}))
	mux.HandleFunc("DELETE /users/{id}", handle(h, "users.delete", func(w http.ResponseWriter, r *http.Request) (any, error) {
		row, err := m.DeleteUser(r.Context(), r.PathValue("id"))
		return writeTarget(row, err)
	}))
	mux.HandleFunc("POST /users/{id}/subscribeTo", handle(h, "users.subscribeTo", func(w http.ResponseWriter, r *http.Request) (any, error) {
		body, err := decodeSubscription(h, w, r, "users.subscribeTo")
		if err != nil {
			return nil, err
		}
		row, err := m.Subscribe(r.Context(), r.PathValue("id"), body.UserID)
		return writeTarget(row, err)
	}))
	mux.HandleFunc("POST /users/{id}/unsubscribeFrom", handle(h, "users.unsubscribeFrom", func(w http.ResponseWriter, r *http.Request) (any, error) {
		body, err := decodeSubscription(h, w, r, "users.unsubscribeFrom")
		if err != nil {
			return nil, err
		}
		return m.Unsubscribe(r.Context(), r.PathValue("id"), body.UserID)
	}))

	mux.HandleFunc("GET /posts", handle(h, "posts.list", func(w http.ResponseWriter, r *http.Request) (any, error) {
		rows, err := m.ListPosts(r.Context())
		return list(rows, err)
	}))
	mux.HandleFunc("GET /posts/{id}", handle(h, "posts.get", func(w http.ResponseWriter, r *http.Request) (any, error) {
		return m.GetPost(r.Context(), r.PathValue("id"))
	}))
	mux.HandleFunc("POST /posts", handle(h, "posts.create", func(w http.ResponseWriter, r *http.Request) (any, error) {
		in, err := decode[entity.CreatePost](h, w, r, "posts.create")
		if err != nil {
			return nil, err
		}
		return m.CreatePost(r.Context(), in)
	}))
	mux.HandleFunc("PATCH /posts/{id}", handle(h, "posts.change", func(w http.ResponseWriter, r *http.Request) (any, error) {
		patch, err := decode[entity.PostPatch](h, w, r, "posts.change")
		if err != nil {
			return nil, err
		}
		row, err := m.ChangePost(r.Context(), r.PathValue("id"), patch)
		return writeTarget(row, err)
	}))
	mux.HandleFunc("DELETE /posts/{id}", handle(h, "posts.delete", func(w http.ResponseWriter, r *http.Request) (any, error) {
		row, err := m.DeletePost(r.Context(), r.PathValue("id"))
		return writeTarget(row, err)
	}))

	mux.HandleFunc("GET /profiles", handle(h, "profiles.list", func(w http.ResponseWriter, r *http.Request) (any, error) {
		rows, err := m.ListProfiles(r.Context())
		return list(rows, err)
	}))
	mux.HandleFunc("GET /profiles/{id}", handle(h, "profiles.get", func(w http.ResponseWriter, r *http.Request) (any, error) {
		return m.GetProfile(r.Context(), r.PathValue("id"))
	}))
	mux.HandleFunc("POST /profiles", handle(h, "profiles.create", func(w http.ResponseWriter, r *http.Request) (any, error) {
		in, err := decode[entity.CreateProfile](h, w, r, "profiles.create")
		if err != nil {
			return nil, err
		}
		return m.CreateProfile(r.Context(), in)
	}))
	mux.HandleFunc("PATCH /profiles/{id}", handle(h, "profiles.change", func(w http.ResponseWriter, r *http.Request) (any, error) {
		patch, err := decode[entity.ProfilePatch](h, w, r, "profiles.change")
		if err != nil {
			return nil, err
		}
		row, err := m.ChangeProfile(r.Context(), r.PathValue("id"), patch)
		return writeTarget(row, err)
	}))
	mux.HandleFunc("DELETE /profiles/{id}", handle(h, "profiles.delete", func(w http.ResponseWriter, r *http.Request) (any, error) {
		row, err := m.DeleteProfile(r.Context(), r.PathValue("id"))
		return writeTarget(row, err)
	}))

	mux.HandleFunc("GET /member-types", handle(h, "memberTypes.list", func(w http.ResponseWriter, r *http.Request) (any, error) {
		rows, err := m.ListMemberTypes(r.Context())
		return list(rows, err)
	}))
	mux.HandleFunc("GET /member-types/{id}", handle(h, "memberTypes.get", func(w http.ResponseWriter, r *http.Request) (any, error) {
		return m.GetMemberType(r.Context(), r.PathValue("id"))
	}))
	mux.HandleFunc("PATCH /member-types/{id}", handle(h, "memberTypes.change", func(w http.ResponseWriter, r *http.Request) (any, error) {
		patch, err := decode[entity.MemberTypePatch](h, w, r, "memberTypes.change")
		if err != nil {
			return nil, err
		}
		row, err := m.ChangeMemberType(r.Context(), r.PathValue("id"), patch)
		return writeTarget(row, err)
	}))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, rid := reqid.NewContext(r.Context(), r.Header.Get("X-Request-ID"))
	r = r.WithContext(ctx)
	w.Header().Set("X-Request-ID", rid)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	h.mux.ServeHTTP(rec, r)
	eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: rec.status, Duration: time.Since(start)})
}

// handle adapts fn to an http.HandlerFunc writing the result as JSON.
func handle(h *Handler, op string, fn func(w http.ResponseWriter, r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := fn(w, r)
		if err != nil {
			h.fail(w, r, op, err)
			return
		}
		h.writeJSON(w, http.StatusOK, v)
	}
}

// errorBody is the wire shape of a failed request.
type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := apperr.HTTPStatus(err)
	rid, _ := reqid.FromContext(r.Context())
	h.logger.Warn("request failed", "op", op, "status", status, "request_id", rid, "error", err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	h.writeJSON(w, status, errorBody{StatusCode: status, Error: http.StatusText(status), Message: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if h.pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

// decode reads a single JSON object. Unknown fields and trailing data are
// rejected.
func decode[T any](h *Handler, w http.ResponseWriter, r *http.Request, op string) (T, error) {
	var v T
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return v, apperr.BadRequest(op, "body too large")
		}
		return v, apperr.BadRequest(op, "malformed body: "+err.Error())
	}
	if dec.More() {
		return v, apperr.BadRequest(op, "malformed body: trailing data")
	}
	return v, nil
}

type subscription struct {
	UserID string `json:"userId"`
}

func decodeSubscription(h *Handler, w http.ResponseWriter, r *http.Request, op string) (subscription, error) {
	body, err := decode[subscription](h, w, r, op)
	if err == nil && body.UserID == "" {
		err = apperr.Validation(op, "missing required fields: userId")
	}
	return body, err
}

// writeTarget reports a missing target of a write as a bad request, the way
// reads report it as not found.
func writeTarget[T any](row T, err error) (any, error) {
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, &apperr.Error{Kind: apperr.KindBadRequest, Msg: err.Error()}
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// list reports an empty collection as [] rather than null.
func list[T any](rows []T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
