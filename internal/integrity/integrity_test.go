package integrity

import (
	"context"
	"sync"
	"testing"

	"github.com/hanpama/socialgraph/internal/apperr"
	"github.com/hanpama/socialgraph/internal/entity"
	"github.com/hanpama/socialgraph/internal/eventbus"
	"github.com/hanpama/socialgraph/internal/events"
	"github.com/hanpama/socialgraph/internal/store"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	m   *Manager
	db  *entity.DB
	ctx context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := entity.NewDB()
	ctx := context.Background()
	for _, mt := range []entity.MemberType{{ID: "basic", MonthPostsLimit: 20}, {ID: "business", Discount: 15, MonthPostsLimit: 100}} {
		_, err := db.MemberTypes.Insert(ctx, mt)
		require.NoError(t, err)
	}
	return &fixture{m: New(db), db: db, ctx: ctx}
}

func (f *fixture) user(t *testing.T, name string) entity.User {
	t.Helper()
	u, err := f.m.CreateUser(f.ctx, entity.CreateUser{FirstName: name, LastName: name, Email: name + "@example.com"})
	require.NoError(t, err)
	return u
}

func (f *fixture) profileInput(userID string) entity.CreateProfile {
	return entity.CreateProfile{
		Avatar: "a.png", Sex: "f", Birthday: "1815-12-10", Country: "UK",
		Street: "St James's Square", City: "London", MemberTypeID: "basic", UserID: userID,
	}
}

func TestCreatePostRequiresUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.CreatePost(f.ctx, entity.CreatePost{Title: "t", Content: "c", UserID: "ghost"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Zero(t, f.db.Posts.Len())

	u := f.user(t, "ada")
	p, err := f.m.CreatePost(f.ctx, entity.CreatePost{Title: "t", Content: "c", UserID: u.ID})
	require.NoError(t, err)
	require.Equal(t, u.ID, p.UserID)
	require.NotEmpty(t, p.ID)
}

func TestCreateRejectsMissingFields(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.CreateUser(f.ctx, entity.CreateUser{FirstName: "a"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Contains(t, err.Error(), "lastName")
	require.Zero(t, f.db.Users.Len())
}

func TestCreateProfileChecks(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "ada")

	_, err := f.m.CreateProfile(f.ctx, f.profileInput("ghost"))
	require.ErrorIs(t, err, apperr.ErrValidation)

	in := f.profileInput(u.ID)
	in.MemberTypeID = "platinum"
	_, err = f.m.CreateProfile(f.ctx, in)
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Zero(t, f.db.Profiles.Len())

	first, err := f.m.CreateProfile(f.ctx, f.profileInput(u.ID))
	require.NoError(t, err)

	_, err = f.m.CreateProfile(f.ctx, f.profileInput(u.ID))
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Equal(t, 1, f.db.Profiles.Len())

	got, err := f.m.GetProfile(f.ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, first, got)
}

func TestCreateProfileConcurrentlyKeepsOnePerUser(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "ada")

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.m.CreateProfile(f.ctx, f.profileInput(u.ID))
		}()
	}
	wg.Wait()
	require.Equal(t, 1, f.db.Profiles.Len())
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")

	updated, err := f.m.Subscribe(f.ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.Equal(t, []string{a.ID}, updated.SubscribedToUserIDs)

	_, err = f.m.Subscribe(f.ctx, a.ID, b.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	got, err := f.m.GetUser(f.ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, []string{a.ID}, got.SubscribedToUserIDs)

	_, err = f.m.Subscribe(f.ctx, a.ID, a.ID)
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.m.Subscribe(f.ctx, a.ID, "ghost")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.m.Subscribe(f.ctx, "ghost", b.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")
	c := f.user(t, "c")
	_, err := f.m.Subscribe(f.ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.m.Subscribe(f.ctx, c.ID, b.ID)
	require.NoError(t, err)

	_, err = f.m.Unsubscribe(f.ctx, c.ID, a.ID)
	require.ErrorIs(t, err, apperr.ErrBadRequest)
	_, err = f.m.Unsubscribe(f.ctx, "ghost", b.ID)
	require.ErrorIs(t, err, apperr.ErrBadRequest)
	_, err = f.m.Unsubscribe(f.ctx, a.ID, "ghost")
	require.ErrorIs(t, err, apperr.ErrBadRequest)

	gotA, err := f.m.GetUser(f.ctx, a.ID)
	require.NoError(t, err)
	require.Empty(t, gotA.SubscribedToUserIDs)

	updated, err := f.m.Unsubscribe(f.ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.Equal(t, []string{c.ID}, updated.SubscribedToUserIDs)
}

func TestDeleteUserCascades(t *testing.T) {
	f := newFixture(t)
	target := f.user(t, "target")
	other := f.user(t, "other")
	third := f.user(t, "third")

	_, err := f.m.Subscribe(f.ctx, target.ID, other.ID)
	require.NoError(t, err)
	_, err = f.m.Subscribe(f.ctx, third.ID, other.ID)
	require.NoError(t, err)
	_, err = f.m.Subscribe(f.ctx, other.ID, target.ID)
	require.NoError(t, err)
	for range 3 {
		_, err := f.m.CreatePost(f.ctx, entity.CreatePost{Title: "t", Content: "c", UserID: target.ID})
		require.NoError(t, err)
	}
	kept, err := f.m.CreatePost(f.ctx, entity.CreatePost{Title: "t", Content: "c", UserID: other.ID})
	require.NoError(t, err)
	_, err = f.m.CreateProfile(f.ctx, f.profileInput(target.ID))
	require.NoError(t, err)

	removed, err := f.m.DeleteUser(f.ctx, target.ID)
	require.NoError(t, err)
	require.Equal(t, target.ID, removed.ID)

	_, ok, err := f.db.Users.FindOne(f.ctx, store.Equals(entity.FieldID, target.ID))
	require.NoError(t, err)
	require.False(t, ok)

	refs, err := f.db.Users.FindMany(f.ctx, store.InArray(entity.FieldSubscribedToUserIDs, target.ID))
	require.NoError(t, err)
	require.Empty(t, refs)
	gotOther, err := f.m.GetUser(f.ctx, other.ID)
	require.NoError(t, err)
	require.Equal(t, []string{third.ID}, gotOther.SubscribedToUserIDs)

	posts, err := f.m.ListPosts(f.ctx)
	require.NoError(t, err)
	require.Equal(t, []entity.Post{kept}, posts)

	profiles, err := f.db.Profiles.FindMany(f.ctx, store.Equals(entity.FieldUserID, target.ID))
	require.NoError(t, err)
	require.Empty(t, profiles)
}

func TestDeleteUserMissingDoesNothing(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a")
	_, err := f.m.CreatePost(f.ctx, entity.CreatePost{Title: "t", Content: "c", UserID: u.ID})
	require.NoError(t, err)

	_, err = f.m.DeleteUser(f.ctx, "ghost")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.Equal(t, 1, f.db.Users.Len())
	require.Equal(t, 1, f.db.Posts.Len())
}

func TestDeleteUserPublishesCascade(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })
	var got []events.CascadeFinish
	eventbus.Subscribe(func(_ context.Context, e events.CascadeFinish) { got = append(got, e) })

	f := newFixture(t)
	u := f.user(t, "a")
	_, err := f.m.CreatePost(f.ctx, entity.CreatePost{Title: "t", Content: "c", UserID: u.ID})
	require.NoError(t, err)
	_, err = f.m.DeleteUser(f.ctx, u.ID)
	require.NoError(t, err)

	require.Len(t, got, 1)
	require.Equal(t, u.ID, got[0].UserID)
	require.Equal(t, 1, got[0].Posts)
	require.Zero(t, got[0].Profiles)
	require.NoError(t, got[0].Err)
}

func TestChangeRoundTrip(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "ada")
	email := "new@example.com"
	_, err := f.m.ChangeUser(f.ctx, u.ID, entity.UserPatch{Email: &email})
	require.NoError(t, err)

	got, err := f.m.GetUser(f.ctx, u.ID)
	require.NoError(t, err)
	want := u
	want.Email = email
	require.Equal(t, want, got)

	discount := 7
	mt, err := f.m.ChangeMemberType(f.ctx, "basic", entity.MemberTypePatch{Discount: &discount})
	require.NoError(t, err)
	require.Equal(t, entity.MemberType{ID: "basic", Discount: 7, MonthPostsLimit: 20}, mt)

	_, err = f.m.ChangePost(f.ctx, "ghost", entity.PostPatch{})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.m.DeleteProfile(f.ctx, "ghost")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestChangeUserStoresSubscriptionListAsGiven(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "a")
	b := f.user(t, "b")

	list := []string{b.ID, "ghost", a.ID, b.ID}
	got, err := f.m.ChangeUser(f.ctx, a.ID, entity.UserPatch{SubscribedToUserIDs: &list})
	require.NoError(t, err)
	require.Equal(t, list, got.SubscribedToUserIDs)

	list[0] = "changed"
	stored, err := f.m.GetUser(f.ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{b.ID, "ghost", a.ID, b.ID}, stored.SubscribedToUserIDs)

	// Deleting a listed user still scrubs it from the replaced list.
	_, err = f.m.DeleteUser(f.ctx, b.ID)
	require.NoError(t, err)
	stored, err = f.m.GetUser(f.ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"ghost", a.ID}, stored.SubscribedToUserIDs)
}
