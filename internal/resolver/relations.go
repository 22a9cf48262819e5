package resolver

import (
	"context"
	"fmt"

	"github.com/hanpama/socialgraph/internal/entity"
	"github.com/hanpama/socialgraph/internal/executor"
	"github.com/hanpama/socialgraph/internal/loader"
	"github.com/hanpama/socialgraph/internal/store"
)

// relation registers the keys a relationship field needs and returns the
// completion to run once the registry has been dispatched.
func (r *Runtime) relation(reg *loader.Registry, t executor.AsyncResolveTask) (deferred, error) {
	site := t.ObjectType + "." + t.Field
	switch src := t.Source.(type) {
	case entity.User:
		switch t.Field {
		case "posts":
			th := r.postsByUser(reg, site).Load(src.ID)
			return func(ctx context.Context) (any, error) { return th(ctx) }, nil
		case "profile":
			th := r.profilesByUser(reg, site).Load(src.ID)
			return func(ctx context.Context) (any, error) {
				rows, err := th(ctx)
				return first(rows, err)
			}, nil
		case "userSubscribedTo":
			th := r.usersBySubscriber(reg, site).Load(src.ID)
			return func(ctx context.Context) (any, error) { return th(ctx) }, nil
		case "subscribedToUser":
			th := r.usersByID(reg, site).LoadMany(src.SubscribedToUserIDs)
			return func(ctx context.Context) (any, error) { return th(ctx) }, nil
		}
	case entity.Profile:
		if t.Field == "memberType" {
			th := r.memberTypesByID(reg, site).Load(src.MemberTypeID)
			return func(ctx context.Context) (any, error) {
				rows, err := th(ctx)
				return first(rows, err)
			}, nil
		}
	}
	return nil, fmt.Errorf("no resolver for %s on %T", site, t.Source)
}

// first returns the first row, or null when there is none.
func first[T any](rows []T, err error) (any, error) {
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *Runtime) postsByUser(reg *loader.Registry, site string) *loader.Loader[entity.Post] {
	posts := r.m.DB().Posts
	return loader.Get(reg, loader.Key{Kind: entity.KindPosts, Field: entity.FieldUserID, Site: site},
		func(ctx context.Context, ids []string) ([]entity.Post, error) {
			return posts.FindMany(ctx, store.EqualsAnyOf(entity.FieldUserID, ids))
		},
		func(p entity.Post) []string { return []string{p.UserID} },
	)
}

func (r *Runtime) profilesByUser(reg *loader.Registry, site string) *loader.Loader[entity.Profile] {
	profiles := r.m.DB().Profiles
	return loader.Get(reg, loader.Key{Kind: entity.KindProfiles, Field: entity.FieldUserID, Site: site},
		func(ctx context.Context, ids []string) ([]entity.Profile, error) {
			return profiles.FindMany(ctx, store.EqualsAnyOf(entity.FieldUserID, ids))
		},
		func(p entity.Profile) []string { return []string{p.UserID} },
	)
}

// usersBySubscriber answers "which users list this id among their
// subscribers", one bulk lookup on the array field.
func (r *Runtime) usersBySubscriber(reg *loader.Registry, site string) *loader.Loader[entity.User] {
	users := r.m.DB().Users
	return loader.Get(reg, loader.Key{Kind: entity.KindUsers, Field: entity.FieldSubscribedToUserIDs, Site: site},
		func(ctx context.Context, ids []string) ([]entity.User, error) {
			return users.FindMany(ctx, store.InArrayAnyOf(entity.FieldSubscribedToUserIDs, ids))
		},
		func(u entity.User) []string { return u.SubscribedToUserIDs },
	)
}

func (r *Runtime) usersByID(reg *loader.Registry, site string) *loader.Loader[entity.User] {
	users := r.m.DB().Users
	return loader.Get(reg, loader.Key{Kind: entity.KindUsers, Field: entity.FieldID, Site: site},
		func(ctx context.Context, ids []string) ([]entity.User, error) {
			return users.FindMany(ctx, store.EqualsAnyOf(entity.FieldID, ids))
		},
		func(u entity.User) []string { return []string{u.ID} },
	)
}

func (r *Runtime) memberTypesByID(reg *loader.Registry, site string) *loader.Loader[entity.MemberType] {
	memberTypes := r.m.DB().MemberTypes
	return loader.Get(reg, loader.Key{Kind: entity.KindMemberTypes, Field: entity.FieldID, Site: site},
		func(ctx context.Context, ids []string) ([]entity.MemberType, error) {
			return memberTypes.FindMany(ctx, store.EqualsAnyOf(entity.FieldID, ids))
		},
		func(m entity.MemberType) []string { return []string{m.ID} },
	)
}
