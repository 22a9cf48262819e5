// Package entity defines the rows of the social graph: users, posts,
// profiles and member types, with their create inputs, partial updates and
// the field tables the store evaluates predicates against.
package entity

import "slices"

// Collection names, also used as entity kinds in errors and events.
const (
	KindUsers       = "users"
	KindPosts       = "posts"
	KindProfiles    = "profiles"
	KindMemberTypes = "memberTypes"
)

type User struct {
	ID                  string   `json:"id" yaml:"id"`
	FirstName           string   `json:"firstName" yaml:"firstName"`
	LastName            string   `json:"lastName" yaml:"lastName"`
	Email               string   `json:"email" yaml:"email"`
	SubscribedToUserIDs []string `json:"subscribedToUserIds" yaml:"subscribedToUserIds"`
}

func (u User) RowID() string { return u.ID }

func (u User) WithID(id string) User { u.ID = id; return u }

func (u User) Clone() User {
	// keep an empty list non-nil so it encodes as []
	u.SubscribedToUserIDs = append(make([]string, 0, len(u.SubscribedToUserIDs)), u.SubscribedToUserIDs...)
	return u
}

// IsSubscribedBy reports whether id appears in u's subscription list.
func (u User) IsSubscribedBy(id string) bool { return slices.Contains(u.SubscribedToUserIDs, id) }

type Post struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`
	UserID  string `json:"userId" yaml:"userId"`
}

func (p Post) RowID() string { return p.ID }

func (p Post) WithID(id string) Post { p.ID = id; return p }

func (p Post) Clone() Post { return p }

type Profile struct {
	ID           string `json:"id" yaml:"id"`
	Avatar       string `json:"avatar" yaml:"avatar"`
	Sex          string `json:"sex" yaml:"sex"`
	Birthday     string `json:"birthday" yaml:"birthday"`
	Country      string `json:"country" yaml:"country"`
	Street       string `json:"street" yaml:"street"`
	City         string `json:"city" yaml:"city"`
	MemberTypeID string `json:"memberTypeId" yaml:"memberTypeId"`
	UserID       string `json:"userId" yaml:"userId"`
}

func (p Profile) RowID() string { return p.ID }

func (p Profile) WithID(id string) Profile { p.ID = id; return p }

func (p Profile) Clone() Profile { return p }

// MemberType is a membership tier. Tiers have fixed ids and are never deleted.
type MemberType struct {
	ID              string `json:"id" yaml:"id"`
	Discount        int    `json:"discount" yaml:"discount"`
	MonthPostsLimit int    `json:"monthPostsLimit" yaml:"monthPostsLimit"`
}

func (m MemberType) RowID() string { return m.ID }

func (m MemberType) WithID(id string) MemberType { m.ID = id; return m }

func (m MemberType) Clone() MemberType { return m }
