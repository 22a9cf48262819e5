package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/socialgraph/internal/apperr"
	"github.com/hanpama/socialgraph/internal/entity"
	"github.com/hanpama/socialgraph/internal/integrity"
)

const fixtures = `
memberTypes:
  - {id: basic, discount: 0, monthPostsLimit: 20}
  - {id: business, discount: 15, monthPostsLimit: 100}
users:
  - {key: ada, firstName: Ada, lastName: Lovelace, email: ada@example.com, subscribeTo: [bob]}
  - {key: bob, firstName: Bob, lastName: Babbage, email: bob@example.com}
  - {key: cy, firstName: Cy, lastName: Cray, email: cy@example.com, subscribeTo: [bob, ada]}
posts:
  - {user: bob, title: Engines, content: difference}
  - {user: bob, title: More engines, content: analytical}
profiles:
  - {user: ada, avatar: a.png, sex: f, birthday: "1815-12-10", country: UK, street: s, city: London, memberTypeId: business}
`

func TestDefaultSeedsMemberTypes(t *testing.T) {
	m := integrity.New(entity.NewDB())
	sum, err := Default().Apply(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, Summary{MemberTypes: 2}, sum)

	got, err := m.ListMemberTypes(context.Background())
	require.NoError(t, err)
	want := []entity.MemberType{
		{ID: "basic", Discount: 0, MonthPostsLimit: 20},
		{ID: "business", Discount: 15, MonthPostsLimit: 100},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("member types mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyFixtures(t *testing.T) {
	ctx := context.Background()
	f, err := Parse(strings.NewReader(fixtures))
	require.NoError(t, err)

	m := integrity.New(entity.NewDB())
	sum, err := f.Apply(ctx, m)
	require.NoError(t, err)
	require.Equal(t, Summary{MemberTypes: 2, Users: 3, Subscriptions: 3, Posts: 2, Profiles: 1}, sum)

	users, err := m.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	ada, bob, cy := users[0], users[1], users[2]
	require.Equal(t, "Ada", ada.FirstName)
	require.Equal(t, []string{ada.ID, cy.ID}, bob.SubscribedToUserIDs)
	require.Equal(t, []string{cy.ID}, ada.SubscribedToUserIDs)
	require.Empty(t, cy.SubscribedToUserIDs)

	posts, err := m.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	for _, p := range posts {
		require.Equal(t, bob.ID, p.UserID)
	}

	profiles, err := m.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	require.Equal(t, ada.ID, profiles[0].UserID)
	require.Equal(t, "business", profiles[0].MemberTypeID)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":         "memberTypes:\n  - {id: basic, colour: red}\n",
		"missing id":          "memberTypes:\n  - {discount: 1}\n",
		"duplicate id":        "memberTypes:\n  - {id: basic}\n  - {id: basic}\n",
		"missing key":         "users:\n  - {firstName: a}\n",
		"duplicate key":       "users:\n  - {key: a}\n  - {key: a}\n",
		"unknown subscribeTo": "users:\n  - {key: a, subscribeTo: [z]}\n",
		"unknown post author": "posts:\n  - {user: z, title: t}\n",
		"unknown profile":     "profiles:\n  - {user: z}\n",
		"not yaml":            "memberTypes: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, &File{}, f)
}

func TestApplyReportsManagerErrors(t *testing.T) {
	ctx := context.Background()
	m := integrity.New(entity.NewDB())
	_, err := Default().Apply(ctx, m)
	require.NoError(t, err)

	// seeding twice collides on the fixed member type ids
	_, err = Default().Apply(ctx, m)
	require.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)

	f, err := Parse(strings.NewReader("users:\n  - {key: a, firstName: A}\n"))
	require.NoError(t, err)
	sum, err := f.Apply(ctx, m)
	require.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
	require.Zero(t, sum.Users)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtures), 0o600))
	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Users, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
