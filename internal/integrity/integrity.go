// Package integrity layers the social graph's domain rules over the store:
// foreign-key checks on create, one profile per user, subscription edges, and
// the cascade that runs when a user is deleted.
package integrity

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hanpama/socialgraph/internal/apperr"
	"github.com/hanpama/socialgraph/internal/entity"
	"github.com/hanpama/socialgraph/internal/eventbus"
	"github.com/hanpama/socialgraph/internal/events"
	"github.com/hanpama/socialgraph/internal/store"
	"golang.org/x/sync/errgroup"
)

// Manager performs every domain check before it writes and fails fast on the
// first violated rule. Operations whose checks span rows are serialized so a
// check cannot be invalidated between the read and the write.
type Manager struct {
	db     *entity.DB
	logger *slog.Logger
	mu     sync.Mutex
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

func New(db *entity.DB, opts ...Option) *Manager {
	m := &Manager{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// DB exposes the underlying collections for plain reads.
func (m *Manager) DB() *entity.DB { return m.db }

// ------------------ Users ------------------

func (m *Manager) ListUsers(ctx context.Context) ([]entity.User, error) {
	return m.db.Users.FindMany(ctx, store.All())
}

func (m *Manager) GetUser(ctx context.Context, id string) (entity.User, error) {
	return m.db.Users.Get(ctx, id)
}

func (m *Manager) CreateUser(ctx context.Context, in entity.CreateUser) (entity.User, error) {
	if miss := in.Missing(); len(miss) > 0 {
		return entity.User{}, requiredFields("users.create", miss)
	}
	return m.db.Users.Create(ctx, in.Row())
}

// ChangeUser applies patch as given. A replaced subscription list is not
// checked against the users collection.
func (m *Manager) ChangeUser(ctx context.Context, id string, patch entity.UserPatch) (entity.User, error) {
	return m.db.Users.Change(ctx, id, patch)
}

// DeleteUser removes the user after clearing everything that refers to it.
// The three cleanup steps are independent and run concurrently; the user row
// is removed only after all of them complete. A failed step does not undo
// the steps that already succeeded.
func (m *Manager) DeleteUser(ctx context.Context, id string) (entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.db.Users.Get(ctx, id); err != nil {
		return entity.User{}, err
	}

	start := time.Now()
	var subs, posts, profiles int
	var g errgroup.Group
	g.Go(func() (err error) {
		subs, err = m.dropSubscriber(ctx, id)
		return err
	})
	g.Go(func() (err error) {
		posts, err = m.deletePostsOf(ctx, id)
		return err
	})
	g.Go(func() (err error) {
		profiles, err = m.deleteProfileOf(ctx, id)
		return err
	})
	err := g.Wait()

	var removed entity.User
	if err == nil {
		removed, err = m.db.Users.Delete(ctx, id)
	}
	m.logger.Debug("user cascade", "user", id, "subscriptions", subs, "posts", posts, "profiles", profiles, "error", err)
	eventbus.Publish(ctx, events.CascadeFinish{
		UserID:        id,
		Subscriptions: subs,
		Posts:         posts,
		Profiles:      profiles,
		Err:           err,
		Duration:      time.Since(start),
	})
	if err != nil {
		return entity.User{}, err
	}
	return removed, nil
}

func (m *Manager) dropSubscriber(ctx context.Context, id string) (int, error) {
	owners, err := m.db.Users.FindMany(ctx, store.InArray(entity.FieldSubscribedToUserIDs, id))
	if err != nil {
		return 0, err
	}
	for _, o := range owners {
		if _, err := m.db.Users.Change(ctx, o.ID, removeSubscriber(id)); err != nil {
			return 0, err
		}
	}
	return len(owners), nil
}

func (m *Manager) deletePostsOf(ctx context.Context, id string) (int, error) {
	posts, err := m.db.Posts.FindMany(ctx, store.Equals(entity.FieldUserID, id))
	if err != nil {
		return 0, err
	}
	for _, p := range posts {
		if _, err := m.db.Posts.Delete(ctx, p.ID); err != nil {
			return 0, err
		}
	}
	return len(posts), nil
}

func (m *Manager) deleteProfileOf(ctx context.Context, id string) (int, error) {
	profiles, err := m.db.Profiles.FindMany(ctx, store.Equals(entity.FieldUserID, id))
	if err != nil {
		return 0, err
	}
	for _, p := range profiles {
		if _, err := m.db.Profiles.Delete(ctx, p.ID); err != nil {
			return 0, err
		}
	}
	return len(profiles), nil
}

// Subscribe records that id subscribes to subscribeToID. The edge is stored
// on the target: id is appended to the target's subscribedToUserIds. It
// returns the updated target.
func (m *Manager) Subscribe(ctx context.Context, id, subscribeToID string) (entity.User, error) {
	const op = "users.subscribeTo"
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.db.Users.Get(ctx, id); err != nil {
		return entity.User{}, err
	}
	target, err := m.db.Users.Get(ctx, subscribeToID)
	if err != nil {
		return entity.User{}, err
	}
	if id == subscribeToID {
		return entity.User{}, apperr.Validation(op, "a user cannot subscribe to itself")
	}
	if target.IsSubscribedBy(id) {
		return entity.User{}, apperr.Conflict(op, "user "+id+" is already subscribed to "+subscribeToID)
	}
	return m.db.Users.Change(ctx, subscribeToID, addSubscriber(id))
}

// Unsubscribe removes the edge created by Subscribe. Every failure is a bad
// request, including a missing user.
func (m *Manager) Unsubscribe(ctx context.Context, id, unsubscribeFromID string) (entity.User, error) {
	const op = "users.unsubscribeFrom"
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok, err := m.db.Users.FindOne(ctx, store.Equals(entity.FieldID, id)); err != nil {
		return entity.User{}, err
	} else if !ok {
		return entity.User{}, apperr.BadRequest(op, "user "+id+" does not exist")
	}
	owner, ok, err := m.db.Users.FindOne(ctx, store.Equals(entity.FieldID, unsubscribeFromID))
	if err != nil {
		return entity.User{}, err
	}
	if !ok {
		return entity.User{}, apperr.BadRequest(op, "user "+unsubscribeFromID+" does not exist")
	}
	if !owner.IsSubscribedBy(id) {
		return entity.User{}, apperr.BadRequest(op, "user "+id+" is not subscribed to "+unsubscribeFromID)
	}
	return m.db.Users.Change(ctx, unsubscribeFromID, removeSubscriber(id))
}

// ------------------ Posts ------------------

func (m *Manager) ListPosts(ctx context.Context) ([]entity.Post, error) {
	return m.db.Posts.FindMany(ctx, store.All())
}

func (m *Manager) GetPost(ctx context.Context, id string) (entity.Post, error) {
	return m.db.Posts.Get(ctx, id)
}

func (m *Manager) CreatePost(ctx context.Context, in entity.CreatePost) (entity.Post, error) {
	const op = "posts.create"
	if miss := in.Missing(); len(miss) > 0 {
		return entity.Post{}, requiredFields(op, miss)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireUser(ctx, op, in.UserID); err != nil {
		return entity.Post{}, err
	}
	return m.db.Posts.Create(ctx, in.Row())
}

func (m *Manager) ChangePost(ctx context.Context, id string, patch entity.PostPatch) (entity.Post, error) {
	return m.db.Posts.Change(ctx, id, patch)
}

func (m *Manager) DeletePost(ctx context.Context, id string) (entity.Post, error) {
	return m.db.Posts.Delete(ctx, id)
}

// ------------------ Profiles ------------------

func (m *Manager) ListProfiles(ctx context.Context) ([]entity.Profile, error) {
	return m.db.Profiles.FindMany(ctx, store.All())
}

func (m *Manager) GetProfile(ctx context.Context, id string) (entity.Profile, error) {
	return m.db.Profiles.Get(ctx, id)
}

// CreateProfile checks, in order, that the user exists, that the user has no
// profile yet, and that the member type exists.
func (m *Manager) CreateProfile(ctx context.Context, in entity.CreateProfile) (entity.Profile, error) {
	const op = "profiles.create"
	if miss := in.Missing(); len(miss) > 0 {
		return entity.Profile{}, requiredFields(op, miss)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireUser(ctx, op, in.UserID); err != nil {
		return entity.Profile{}, err
	}
	_, taken, err := m.db.Profiles.FindOne(ctx, store.Equals(entity.FieldUserID, in.UserID))
	if err != nil {
		return entity.Profile{}, err
	}
	if taken {
		return entity.Profile{}, apperr.Validation(op, "user "+in.UserID+" already has a profile")
	}
	_, ok, err := m.db.MemberTypes.FindOne(ctx, store.Equals(entity.FieldID, in.MemberTypeID))
	if err != nil {
		return entity.Profile{}, err
	}
	if !ok {
		return entity.Profile{}, apperr.Validation(op, "member type "+in.MemberTypeID+" does not exist")
	}
	return m.db.Profiles.Create(ctx, in.Row())
}

// ChangeProfile applies patch as is; a changed memberTypeId is not re-validated.
func (m *Manager) ChangeProfile(ctx context.Context, id string, patch entity.ProfilePatch) (entity.Profile, error) {
	return m.db.Profiles.Change(ctx, id, patch)
}

func (m *Manager) DeleteProfile(ctx context.Context, id string) (entity.Profile, error) {
	return m.db.Profiles.Delete(ctx, id)
}

// ------------------ Member types ------------------

func (m *Manager) ListMemberTypes(ctx context.Context) ([]entity.MemberType, error) {
	return m.db.MemberTypes.FindMany(ctx, store.All())
}

func (m *Manager) GetMemberType(ctx context.Context, id string) (entity.MemberType, error) {
	return m.db.MemberTypes.Get(ctx, id)
}

func (m *Manager) ChangeMemberType(ctx context.Context, id string, patch entity.MemberTypePatch) (entity.MemberType, error) {
	return m.db.MemberTypes.Change(ctx, id, patch)
}

// ------------------ helpers ------------------

func (m *Manager) requireUser(ctx context.Context, op, id string) error {
	_, ok, err := m.db.Users.FindOne(ctx, store.Equals(entity.FieldID, id))
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Validation(op, "user "+id+" does not exist")
	}
	return nil
}

func requiredFields(op string, names []string) error {
	return apperr.Validation(op, "missing required fields: "+strings.Join(names, ", "))
}

// addSubscriber and removeSubscriber edit the list at write time, under the
// collection lock, so concurrent edits to other entries are not lost.
type addSubscriber string

func (a addSubscriber) Apply(u entity.User) entity.User {
	if !slices.Contains(u.SubscribedToUserIDs, string(a)) {
		u.SubscribedToUserIDs = append(u.SubscribedToUserIDs, string(a))
	}
	return u
}

type removeSubscriber string

func (r removeSubscriber) Apply(u entity.User) entity.User {
	u.SubscribedToUserIDs = slices.DeleteFunc(u.SubscribedToUserIDs, func(s string) bool { return s == string(r) })
	return u
}
