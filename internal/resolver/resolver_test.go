package resolver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/socialgraph/internal/entity"
	"github.com/hanpama/socialgraph/internal/executor"
	"github.com/hanpama/socialgraph/internal/integrity"
	"github.com/hanpama/socialgraph/internal/language"
	"github.com/hanpama/socialgraph/internal/loader"
	"github.com/hanpama/socialgraph/internal/resolver"
	"github.com/hanpama/socialgraph/internal/schema"
	"github.com/hanpama/socialgraph/internal/store"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	m    *integrity.Manager
	sch  *schema.Schema
	rt   executor.Runtime
	ctx  context.Context
	mu   sync.Mutex
	find map[string]int // "kind:key" -> FindMany calls
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), find: map[string]int{}}
	var seq atomic.Int64
	db := entity.NewDB(
		store.WithObserver(func(kind string, p store.Predicate) {
			f.mu.Lock()
			f.find[kind+":"+p.Key()]++
			f.mu.Unlock()
		}),
		store.WithIDGenerator(func() string { return fmt.Sprintf("id%d", seq.Add(1)) }),
	)
	for _, mt := range []entity.MemberType{{ID: "basic", MonthPostsLimit: 20}, {ID: "business", Discount: 15, MonthPostsLimit: 100}} {
		_, err := db.MemberTypes.Insert(f.ctx, mt)
		require.NoError(t, err)
	}
	sch, err := resolver.Schema()
	require.NoError(t, err)
	f.m = integrity.New(db)
	f.sch = sch
	f.rt = resolver.New(f.m)
	return f
}

func (f *fixture) resetCounts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.find = map[string]int{}
}

func (f *fixture) counts() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.find))
	for k, v := range f.find {
		out[k] = v
	}
	return out
}

// do runs one document with a fresh loader registry, the way the server does.
func (f *fixture) do(t *testing.T, query string, vars map[string]any) *executor.ExecutionResult {
	t.Helper()
	return f.doWith(t, f.ctx, f.rt, query, vars)
}

func (f *fixture) doWith(t *testing.T, ctx context.Context, rt executor.Runtime, query string, vars map[string]any) *executor.ExecutionResult {
	t.Helper()
	doc, errs := language.ParseAndValidate(f.sch.Source, query)
	require.Empty(t, errs)
	ctx, _ = loader.NewContext(ctx)
	exec := executor.NewExecutor(rt, f.sch, executor.WithErrorPresenter(resolver.PresentError))
	return exec.ExecuteRequest(ctx, doc, "", vars, nil)
}

func (f *fixture) user(t *testing.T, name string) entity.User {
	t.Helper()
	u, err := f.m.CreateUser(f.ctx, entity.CreateUser{FirstName: name, LastName: name, Email: name + "@example.com"})
	require.NoError(t, err)
	return u
}

func (f *fixture) post(t *testing.T, userID, title string) entity.Post {
	t.Helper()
	p, err := f.m.CreatePost(f.ctx, entity.CreatePost{Title: title, Content: "c", UserID: userID})
	require.NoError(t, err)
	return p
}

func (f *fixture) profile(t *testing.T, userID, memberType string) entity.Profile {
	t.Helper()
	p, err := f.m.CreateProfile(f.ctx, entity.CreateProfile{
		Avatar: "a.png", Sex: "m", Birthday: "1791-12-26", Country: "UK",
		Street: "Dorset Street", City: "London", MemberTypeID: memberType, UserID: userID,
	})
	require.NoError(t, err)
	return p
}

// normalize round-trips v through JSON so typed rows compare as plain maps.
func normalize(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var out any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func requireData(t *testing.T, want string, res *executor.ExecutionResult) {
	t.Helper()
	var w any
	require.NoError(t, json.Unmarshal([]byte(want), &w))
	if diff := cmp.Diff(w, normalize(t, res.Data)); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func codes(res *executor.ExecutionResult) []string {
	var out []string
	for _, e := range res.Errors {
		code, _ := e.Extensions["code"].(string)
		out = append(out, code)
	}
	return out
}

func TestRelationshipsCostOneFetchPerDepth(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")
	c := f.user(t, "c")
	a1 := f.post(t, a.ID, "a1")
	a2 := f.post(t, a.ID, "a2")
	c1 := f.post(t, c.ID, "c1")
	f.profile(t, a.ID, "basic")
	f.profile(t, b.ID, "business")
	for _, e := range [][2]string{{a.ID, b.ID}, {c.ID, b.ID}, {b.ID, a.ID}} {
		_, err := f.m.Subscribe(f.ctx, e[0], e[1])
		require.NoError(t, err)
	}
	f.resetCounts()

	res := f.do(t, `{
		users {
			id
			posts { id }
			profile { memberType { id } }
			userSubscribedTo { id }
			subscribedToUser { id }
		}
	}`, nil)
	require.Empty(t, res.Errors)

	requireData(t, fmt.Sprintf(`{"users": [
		{"id": %[1]q, "posts": [{"id": %[4]q}, {"id": %[5]q}], "profile": {"memberType": {"id": "basic"}},
		 "userSubscribedTo": [{"id": %[2]q}], "subscribedToUser": [{"id": %[2]q}]},
		{"id": %[2]q, "posts": [], "profile": {"memberType": {"id": "business"}},
		 "userSubscribedTo": [{"id": %[1]q}], "subscribedToUser": [{"id": %[1]q}, {"id": %[3]q}]},
		{"id": %[3]q, "posts": [{"id": %[6]q}], "profile": null,
		 "userSubscribedTo": [{"id": %[2]q}], "subscribedToUser": []}
	]}`, a.ID, b.ID, c.ID, a1.ID, a2.ID, c1.ID), res)

	require.Equal(t, map[string]int{
		"users:":                    1,
		"posts:userId":              1,
		"profiles:userId":           1,
		"users:subscribedToUserIds": 1,
		"users:id":                  1,
		"memberTypes:id":            1,
	}, f.counts())
}

func TestSubscribedToUserKeepsListOrder(t *testing.T) {
	f := newFixture(t)
	target := f.user(t, "target")
	z := f.user(t, "z")
	y := f.user(t, "y")
	x := f.user(t, "x")
	subs := []entity.User{x, z, y}
	for _, u := range subs {
		_, err := f.m.Subscribe(f.ctx, u.ID, target.ID)
		require.NoError(t, err)
	}

	res := f.do(t, `query($id: ID!) { user(id: $id) { subscribedToUserIds subscribedToUser { firstName } } }`,
		map[string]any{"id": target.ID})
	require.Empty(t, res.Errors)
	requireData(t, fmt.Sprintf(`{"user": {
		"subscribedToUserIds": [%q, %q, %q],
		"subscribedToUser": [{"firstName": "x"}, {"firstName": "z"}, {"firstName": "y"}]
	}}`, subs[0].ID, subs[1].ID, subs[2].ID), res)
}

func TestEmptyTablesAreEmptyLists(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, `{ users { id } posts { id } profiles { id } memberTypes { id discount monthPostsLimit } }`, nil)
	require.Empty(t, res.Errors)
	requireData(t, `{"users": [], "posts": [], "profiles": [], "memberTypes": [
		{"id": "basic", "discount": 0, "monthPostsLimit": 20},
		{"id": "business", "discount": 15, "monthPostsLimit": 100}
	]}`, res)
}

func TestMissingRowIsNull(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, `{ user(id: "ghost") { id } post(id: "ghost") { id } memberType(id: "gold") { id } }`, nil)
	require.Empty(t, res.Errors)
	requireData(t, `{"user": null, "post": null, "memberType": null}`, res)
}

func TestCreateThroughMutation(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, `mutation($in: CreateUserDTO) { createUser(input: $in) { firstName email subscribedToUserIds } }`,
		map[string]any{"in": map[string]any{"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com"}})
	require.Empty(t, res.Errors)
	requireData(t, `{"createUser": {"firstName": "Ada", "email": "ada@example.com", "subscribedToUserIds": []}}`, res)

	users, err := f.m.ListUsers(f.ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)

	res = f.do(t, `mutation($in: CreatePostDTO) { createPost(input: $in) { title userId } }`,
		map[string]any{"in": map[string]any{"title": "t", "content": "c", "userId": "ghost"}})
	require.Equal(t, []string{"BAD_USER_INPUT"}, codes(res))
	requireData(t, `{"createPost": null}`, res)

	res = f.do(t, `mutation { createUser { id } }`, nil)
	require.Equal(t, []string{"BAD_USER_INPUT"}, codes(res))
	require.Contains(t, res.Errors[0].Message, "firstName")
}

func TestSubscribeErrorsCarryCodes(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")
	vars := map[string]any{"a": a.ID, "b": b.ID}

	res := f.do(t, `mutation($a: ID!, $b: ID!) {
		first: subscribeTo(input: {id: $a, subscribeToId: $b}) { subscribedToUserIds }
		again: subscribeTo(input: {id: $a, subscribeToId: $b}) { id }
		self: subscribeTo(input: {id: $a, subscribeToId: $a}) { id }
		wrong: unsubscribeFrom(input: {id: $b, unsubscribeFromId: $a}) { id }
	}`, vars)
	require.Equal(t, []string{"CONFLICT", "BAD_USER_INPUT", "BAD_REQUEST"}, codes(res))
	require.Equal(t, executor.Path{"again"}, res.Errors[0].Path)
	requireData(t, fmt.Sprintf(`{"first": {"subscribedToUserIds": [%q]}, "again": null, "self": null, "wrong": null}`, a.ID), res)

	res = f.do(t, `mutation($a: ID!, $b: ID!) { unsubscribeFrom(input: {id: $a, unsubscribeFromId: $b}) { subscribedToUserIds } }`, vars)
	require.Empty(t, res.Errors)
	requireData(t, `{"unsubscribeFrom": {"subscribedToUserIds": []}}`, res)
}

func TestMutationFieldsSeePriorWrites(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a")
	gone := f.post(t, u.ID, "gone")
	kept := f.post(t, u.ID, "kept")

	res := f.do(t, `mutation($u: ID!, $p: ID!) {
		before: changeUser(input: {id: $u}) { posts { title } }
		deletePost(id: $p) { title }
		after: changeUser(input: {id: $u}) { posts { title } }
	}`, map[string]any{"u": u.ID, "p": gone.ID})
	require.Empty(t, res.Errors)
	requireData(t, fmt.Sprintf(`{
		"before": {"posts": [{"title": "gone"}, {"title": %q}]},
		"deletePost": {"title": "gone"},
		"after": {"posts": [{"title": %q}]}
	}`, kept.Title, kept.Title), res)
}

func TestDeleteUserCascadeVisibleToQueries(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")
	f.post(t, a.ID, "p")
	f.profile(t, a.ID, "basic")
	_, err := f.m.Subscribe(f.ctx, a.ID, b.ID)
	require.NoError(t, err)

	res := f.do(t, `mutation($id: ID!) { deleteUser(id: $id) { firstName } }`, map[string]any{"id": a.ID})
	require.Empty(t, res.Errors)
	requireData(t, `{"deleteUser": {"firstName": "a"}}`, res)

	res = f.do(t, `{ users { firstName subscribedToUserIds subscribedToUser { id } } posts { id } profiles { id } }`, nil)
	require.Empty(t, res.Errors)
	requireData(t, `{"users": [{"firstName": "b", "subscribedToUserIds": [], "subscribedToUser": []}], "posts": [], "profiles": []}`, res)

	res = f.do(t, `mutation { deletePost(id: "ghost") { id } }`, nil)
	require.Equal(t, []string{"NOT_FOUND"}, codes(res))
}

func TestChangeMemberType(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, `mutation { changeMemberType(input: {id: "basic", discount: 3}) { id discount monthPostsLimit } }`, nil)
	require.Empty(t, res.Errors)
	requireData(t, `{"changeMemberType": {"id": "basic", "discount": 3, "monthPostsLimit": 20}}`, res)
}

// cancelAfterRoot cancels the request once the root depth resolved, so every
// relationship fetch of the next depth fails.
type cancelAfterRoot struct {
	executor.Runtime
	cancel context.CancelFunc
}

func (c cancelAfterRoot) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	out := c.Runtime.BatchResolveAsync(ctx, tasks)
	c.cancel()
	return out
}

func TestBatchFailureReachesEveryWaiter(t *testing.T) {
	f := newFixture(t)
	for _, n := range []string{"a", "b", "c"} {
		u := f.user(t, n)
		f.post(t, u.ID, n)
	}

	ctx, cancel := context.WithCancel(f.ctx)
	defer cancel()
	res := f.doWith(t, ctx, cancelAfterRoot{Runtime: f.rt, cancel: cancel}, `{ users { firstName posts { id } } }`, nil)

	require.Equal(t, []string{"UPSTREAM_BATCH_FAILURE", "UPSTREAM_BATCH_FAILURE", "UPSTREAM_BATCH_FAILURE"}, codes(res))
	for _, e := range res.Errors[1:] {
		require.Equal(t, res.Errors[0].Message, e.Message)
	}
	requireData(t, `{"users": [
		{"firstName": "a", "posts": null},
		{"firstName": "b", "posts": null},
		{"firstName": "c", "posts": null}
	]}`, res)
}
