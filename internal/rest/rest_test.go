package rest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hanpama/socialgraph/internal/entity"
	"github.com/hanpama/socialgraph/internal/eventbus"
	"github.com/hanpama/socialgraph/internal/events"
	"github.com/hanpama/socialgraph/internal/integrity"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *integrity.Manager) {
	t.Helper()
	db := entity.NewDB()
	for _, mt := range []entity.MemberType{{ID: "basic", MonthPostsLimit: 20}, {ID: "business", Discount: 15, MonthPostsLimit: 100}} {
		_, err := db.MemberTypes.Insert(context.Background(), mt)
		require.NoError(t, err)
	}
	m := integrity.New(db)
	return New(m, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))), m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeTo[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func createUser(t *testing.T, h http.Handler, name string) entity.User {
	t.Helper()
	w := do(t, h, http.MethodPost, "/users", `{"firstName":"`+name+`","lastName":"`+name+`","email":"`+name+`@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decodeTo[entity.User](t, w)
}

func TestUserCRUD(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())

	u := createUser(t, h, "ada")
	require.NotEmpty(t, u.ID)
	require.Empty(t, u.SubscribedToUserIDs)

	w = do(t, h, http.MethodGet, "/users/"+u.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, u, decodeTo[entity.User](t, w))

	w = do(t, h, http.MethodPatch, "/users/"+u.ID, `{"email":"countess@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	changed := decodeTo[entity.User](t, w)
	require.Equal(t, "countess@example.com", changed.Email)
	require.Equal(t, u.FirstName, changed.FirstName)

	w = do(t, h, http.MethodGet, "/users/ghost", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.JSONEq(t, `{"statusCode":404,"error":"Not Found","message":"users.get: users \"ghost\": not found"}`, w.Body.String())

	w = do(t, h, http.MethodPatch, "/users/ghost", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodDelete, "/users/"+u.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodDelete, "/users/"+u.ID, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMalformedBodies(t *testing.T) {
	h, m := newTestHandler(t)

	cases := map[string]string{
		"not json":      `{"firstName":`,
		"unknown field": `{"firstName":"a","lastName":"b","email":"c","age":3}`,
		"missing field": `{"firstName":"a"}`,
		"trailing data": `{"firstName":"a","lastName":"b","email":"c"} {}`,
		"empty":         ``,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/users", body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			got := decodeTo[errorBody](t, w)
			require.Equal(t, 400, got.StatusCode)
			require.Equal(t, "Bad Request", got.Error)
		})
	}
	users, err := m.ListUsers(context.Background())
	require.NoError(t, err)
	require.Empty(t, users)

	small := New(m, WithMaxBodyBytes(8), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	w := do(t, small, http.MethodPost, "/users", `{"firstName":"aaaaaaaaaaaa"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decodeTo[errorBody](t, w).Message, "body too large")
}

func TestSubscribeRoutes(t *testing.T) {
	h, _ := newTestHandler(t)
	a := createUser(t, h, "a")
	b := createUser(t, h, "b")

	w := do(t, h, http.MethodPost, "/users/"+a.ID+"/subscribeTo", `{"userId":"`+b.ID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{a.ID}, decodeTo[entity.User](t, w).SubscribedToUserIDs)

	w = do(t, h, http.MethodPost, "/users/"+a.ID+"/subscribeTo", `{"userId":"`+b.ID+`"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/users/"+a.ID+"/subscribeTo", `{"userId":"ghost"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/users/"+a.ID+"/subscribeTo", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/users/"+b.ID+"/unsubscribeFrom", `{"userId":"`+a.ID+`"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/users/"+a.ID+"/unsubscribeFrom", `{"userId":"`+b.ID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, decodeTo[entity.User](t, w).SubscribedToUserIDs)
}

func TestPostAndProfileRoutes(t *testing.T) {
	h, _ := newTestHandler(t)
	u := createUser(t, h, "ada")

	w := do(t, h, http.MethodPost, "/posts", `{"title":"t","content":"c","userId":"ghost"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/posts", `{"title":"t","content":"c","userId":"`+u.ID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	p := decodeTo[entity.Post](t, w)

	w = do(t, h, http.MethodPatch, "/posts/"+p.ID, `{"title":"t2"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "t2", decodeTo[entity.Post](t, w).Title)

	profile := `{"avatar":"a","sex":"f","birthday":"1815-12-10","country":"UK","street":"s","city":"London","memberTypeId":"basic","userId":"` + u.ID + `"}`
	w = do(t, h, http.MethodPost, "/profiles", profile)
	require.Equal(t, http.StatusOK, w.Code)
	pr := decodeTo[entity.Profile](t, w)
	w = do(t, h, http.MethodPost, "/profiles", profile)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/profiles", "")
	require.Equal(t, []entity.Profile{pr}, decodeTo[[]entity.Profile](t, w))

	w = do(t, h, http.MethodDelete, "/users/"+u.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodGet, "/posts/"+p.ID, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, http.MethodGet, "/profiles", "")
	require.JSONEq(t, `[]`, w.Body.String())
}

func TestMemberTypeRoutes(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h, http.MethodGet, "/member-types", "")
	require.Len(t, decodeTo[[]entity.MemberType](t, w), 2)

	w = do(t, h, http.MethodPatch, "/member-types/business", `{"monthPostsLimit":150}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, entity.MemberType{ID: "business", Discount: 15, MonthPostsLimit: 150}, decodeTo[entity.MemberType](t, w))

	w = do(t, h, http.MethodPatch, "/member-types/gold", `{"discount":1}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/member-types/gold", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodDelete, "/member-types/basic", "")
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPublishesHTTPEvents(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })
	var got []int
	eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) { got = append(got, e.Status) })

	h, _ := newTestHandler(t)
	do(t, h, http.MethodGet, "/users", "")
	do(t, h, http.MethodGet, "/users/ghost", "")
	require.Equal(t, []int{http.StatusOK, http.StatusNotFound}, got)
}

func TestMissingTargetStatuses(t *testing.T) {
	h, _ := newTestHandler(t)
	u := createUser(t, h, "ada")

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/users/ghost", "", http.StatusNotFound},
		{http.MethodGet, "/posts/ghost", "", http.StatusNotFound},
		{http.MethodGet, "/profiles/ghost", "", http.StatusNotFound},
		{http.MethodPatch, "/users/ghost", `{"email":"x"}`, http.StatusBadRequest},
		{http.MethodPatch, "/posts/ghost", `{"title":"x"}`, http.StatusBadRequest},
		{http.MethodPatch, "/profiles/ghost", `{"city":"x"}`, http.StatusBadRequest},
		{http.MethodDelete, "/users/ghost", "", http.StatusBadRequest},
		{http.MethodDelete, "/posts/ghost", "", http.StatusBadRequest},
		{http.MethodDelete, "/profiles/ghost", "", http.StatusBadRequest},
		{http.MethodPost, "/users/ghost/subscribeTo", `{"userId":"` + u.ID + `"}`, http.StatusBadRequest},
		{http.MethodPost, "/users/" + u.ID + "/subscribeTo", `{"userId":"ghost"}`, http.StatusBadRequest},
		{http.MethodPost, "/users/ghost/unsubscribeFrom", `{"userId":"` + u.ID + `"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := do(t, h, tc.method, tc.path, tc.body)
			require.Equal(t, tc.want, w.Code, w.Body.String())
			got := decodeTo[errorBody](t, w)
			require.Equal(t, tc.want, got.StatusCode)
			require.Equal(t, http.StatusText(tc.want), got.Error)
		})
	}
}
