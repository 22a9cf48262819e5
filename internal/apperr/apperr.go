// Package apperr classifies domain failures so route handlers and graph
// resolvers can branch on the kind of failure without inspecting messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the classification of a domain failure.
type Kind int

const (
	// KindInternal is any failure that is not one of the domain kinds below.
	KindInternal Kind = iota
	// KindNotFound means the operation targeted an id that does not exist.
	KindNotFound
	// KindValidation means a required foreign key did not resolve or a
	// uniqueness rule was violated.
	KindValidation
	// KindConflict means the write would duplicate an existing edge.
	KindConflict
	// KindBadRequest means the request is structurally acceptable but does
	// not apply to the current state (e.g. removing an absent edge).
	KindBadRequest
	// KindBatchFailure means a batched fetch failed; every awaiter of the
	// batch observes the same failure.
	KindBatchFailure
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindBadRequest:
		return "bad request"
	case KindBatchFailure:
		return "upstream batch failure"
	default:
		return "internal"
	}
}

// Sentinel errors, one per kind, for use with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrBadRequest   = errors.New("bad request")
	ErrBatchFailure = errors.New("upstream batch failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidation
	case KindConflict:
		return ErrConflict
	case KindBadRequest:
		return ErrBadRequest
	case KindBatchFailure:
		return ErrBatchFailure
	}
	return nil
}

// Error is a classified failure with the operation and target that produced it.
type Error struct {
	Kind   Kind
	Op     string // e.g. "users.delete"
	Entity string // entity kind, e.g. "user"
	ID     string // target id, when there is one
	Msg    string
	Err    error // underlying cause, optional
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Entity != "" && e.ID != "" {
		msg = fmt.Sprintf("%s %q: %s", e.Entity, e.ID, msg)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// NotFound reports a missing row of entity with the given id.
func NotFound(op, entity, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Entity: entity, ID: id}
}

// Validation reports a failed foreign-key or uniqueness check.
func Validation(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

// Conflict reports a duplicate edge.
func Conflict(op, msg string) *Error {
	return &Error{Kind: KindConflict, Op: op, Msg: msg}
}

// BadRequest reports a request that does not apply to current state.
func BadRequest(op, msg string) *Error {
	return &Error{Kind: KindBadRequest, Op: op, Msg: msg}
}

// BatchFailure wraps the cause of a failed batched fetch.
func BatchFailure(op string, cause error) *Error {
	return &Error{Kind: KindBatchFailure, Op: op, Err: cause}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps err to the status the route layer responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindConflict, KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the GraphQL extension code for err.
func Code(err error) string {
	switch KindOf(err) {
	case KindNotFound:
		return "NOT_FOUND"
	case KindValidation:
		return "BAD_USER_INPUT"
	case KindConflict:
		return "CONFLICT"
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindBatchFailure:
		return "UPSTREAM_BATCH_FAILURE"
	default:
		return "INTERNAL"
	}
}
