package entity

import "github.com/hanpama/socialgraph/internal/store"

// Predicate keys. They match the wire names of the fields.
const (
	FieldID                  = "id"
	FieldUserID              = "userId"
	FieldMemberTypeID        = "memberTypeId"
	FieldSubscribedToUserIDs = "subscribedToUserIds"
)

var UserFields = store.Fields[User]{
	FieldID:                  func(u User) any { return u.ID },
	"firstName":              func(u User) any { return u.FirstName },
	"lastName":               func(u User) any { return u.LastName },
	"email":                  func(u User) any { return u.Email },
	FieldSubscribedToUserIDs: func(u User) any { return u.SubscribedToUserIDs },
}

var PostFields = store.Fields[Post]{
	FieldID:     func(p Post) any { return p.ID },
	"title":     func(p Post) any { return p.Title },
	"content":   func(p Post) any { return p.Content },
	FieldUserID: func(p Post) any { return p.UserID },
}

var ProfileFields = store.Fields[Profile]{
	FieldID:           func(p Profile) any { return p.ID },
	"avatar":          func(p Profile) any { return p.Avatar },
	"sex":             func(p Profile) any { return p.Sex },
	"birthday":        func(p Profile) any { return p.Birthday },
	"country":         func(p Profile) any { return p.Country },
	"street":          func(p Profile) any { return p.Street },
	"city":            func(p Profile) any { return p.City },
	FieldMemberTypeID: func(p Profile) any { return p.MemberTypeID },
	FieldUserID:       func(p Profile) any { return p.UserID },
}

var MemberTypeFields = store.Fields[MemberType]{
	FieldID:           func(m MemberType) any { return m.ID },
	"discount":        func(m MemberType) any { return m.Discount },
	"monthPostsLimit": func(m MemberType) any { return m.MonthPostsLimit },
}

// DB groups the four collections.
type DB struct {
	Users       *store.Collection[User]
	Posts       *store.Collection[Post]
	Profiles    *store.Collection[Profile]
	MemberTypes *store.Collection[MemberType]
}

// NewDB creates empty collections. opts apply to every collection.
func NewDB(opts ...store.Option) *DB {
	return &DB{
		Users:       store.New(KindUsers, UserFields, opts...),
		Posts:       store.New(KindPosts, PostFields, opts...),
		Profiles:    store.New(KindProfiles, ProfileFields, opts...),
		MemberTypes: store.New(KindMemberTypes, MemberTypeFields, opts...),
	}
}
