// Package seed loads fixture data from YAML into an empty social graph.
//
// Member types carry fixed ids. Users, posts and profiles get generated ids,
// so the file refers to users by a local key:
//
//	memberTypes:
//	  - {id: basic, discount: 0, monthPostsLimit: 20}
//	users:
//	  - {key: ada, firstName: Ada, lastName: Lovelace, email: ada@example.com, subscribeTo: [bob]}
//	posts:
//	  - {user: ada, title: Notes, content: "..."}
//	profiles:
//	  - {user: ada, memberTypeId: basic, avatar: a.png, ...}
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hanpama/socialgraph/internal/entity"
	"github.com/hanpama/socialgraph/internal/integrity"
)

//go:embed default.yaml
var defaultSeed []byte

type File struct {
	MemberTypes []entity.MemberType `yaml:"memberTypes"`
	Users       []User              `yaml:"users"`
	Posts       []Post              `yaml:"posts"`
	Profiles    []Profile           `yaml:"profiles"`
}

type User struct {
	Key         string   `yaml:"key"`
	FirstName   string   `yaml:"firstName"`
	LastName    string   `yaml:"lastName"`
	Email       string   `yaml:"email"`
	SubscribeTo []string `yaml:"subscribeTo"`
}

type Post struct {
	User    string `yaml:"user"`
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
}

type Profile struct {
	User         string `yaml:"user"`
	Avatar       string `yaml:"avatar"`
	Sex          string `yaml:"sex"`
	Birthday     string `yaml:"birthday"`
	Country      string `yaml:"country"`
	Street       string `yaml:"street"`
	City         string `yaml:"city"`
	MemberTypeID string `yaml:"memberTypeId"`
}

// Summary counts the rows Apply created.
type Summary struct {
	MemberTypes   int
	Users         int
	Subscriptions int
	Posts         int
	Profiles      int
}

// Default returns the built-in seed: the basic and business member types.
func Default() *File {
	f, err := Parse(bytes.NewReader(defaultSeed))
	if err != nil {
		panic(err)
	}
	return f
}

// Parse decodes and checks a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	if err := f.check(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads a seed file from disk.
func Load(path string) (*File, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	defer fp.Close()
	f, err := Parse(fp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// check verifies ids are present and unique and that every user reference
// resolves within the file.
func (f *File) check() error {
	seen := map[string]bool{}
	for i, mt := range f.MemberTypes {
		if mt.ID == "" {
			return fmt.Errorf("seed: memberTypes[%d]: missing id", i)
		}
		if seen[mt.ID] {
			return fmt.Errorf("seed: memberTypes[%d]: duplicate id %q", i, mt.ID)
		}
		seen[mt.ID] = true
	}
	keys := map[string]bool{}
	for i, u := range f.Users {
		if u.Key == "" {
			return fmt.Errorf("seed: users[%d]: missing key", i)
		}
		if keys[u.Key] {
			return fmt.Errorf("seed: users[%d]: duplicate key %q", i, u.Key)
		}
		keys[u.Key] = true
	}
	for i, u := range f.Users {
		for _, to := range u.SubscribeTo {
			if !keys[to] {
				return fmt.Errorf("seed: users[%d].subscribeTo: unknown user %q", i, to)
			}
		}
	}
	for i, p := range f.Posts {
		if !keys[p.User] {
			return fmt.Errorf("seed: posts[%d]: unknown user %q", i, p.User)
		}
	}
	for i, p := range f.Profiles {
		if !keys[p.User] {
			return fmt.Errorf("seed: profiles[%d]: unknown user %q", i, p.User)
		}
	}
	return nil
}

// Apply inserts the fixtures through m so that the same rules hold as for
// API writes. Rows created before a failure are kept.
func (f *File) Apply(ctx context.Context, m *integrity.Manager) (Summary, error) {
	var sum Summary
	for _, mt := range f.MemberTypes {
		if _, err := m.DB().MemberTypes.Insert(ctx, mt); err != nil {
			return sum, fmt.Errorf("seed: member type %s: %w", mt.ID, err)
		}
		sum.MemberTypes++
	}

	ids := make(map[string]string, len(f.Users))
	for _, u := range f.Users {
		row, err := m.CreateUser(ctx, entity.CreateUser{FirstName: u.FirstName, LastName: u.LastName, Email: u.Email})
		if err != nil {
			return sum, fmt.Errorf("seed: user %s: %w", u.Key, err)
		}
		ids[u.Key] = row.ID
		sum.Users++
	}
	for _, u := range f.Users {
		for _, to := range u.SubscribeTo {
			if _, err := m.Subscribe(ctx, ids[u.Key], ids[to]); err != nil {
				return sum, fmt.Errorf("seed: user %s subscribing to %s: %w", u.Key, to, err)
			}
			sum.Subscriptions++
		}
	}

	for _, p := range f.Posts {
		_, err := m.CreatePost(ctx, entity.CreatePost{Title: p.Title, Content: p.Content, UserID: ids[p.User]})
		if err != nil {
			return sum, fmt.Errorf("seed: post %q of %s: %w", p.Title, p.User, err)
		}
		sum.Posts++
	}
	for _, p := range f.Profiles {
		_, err := m.CreateProfile(ctx, entity.CreateProfile{
			Avatar: p.Avatar, Sex: p.Sex, Birthday: p.Birthday, Country: p.Country,
			Street: p.Street, City: p.City, MemberTypeID: p.MemberTypeID, UserID: ids[p.User],
		})
		if err != nil {
			return sum, fmt.Errorf("seed: profile of %s: %w", p.User, err)
		}
		sum.Profiles++
	}
	return sum, nil
}
