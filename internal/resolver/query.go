package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/hanpama/socialgraph/internal/apperr"
)

func (r *Runtime) query(ctx context.Context, field string, args map[string]any) (any, error) {
	switch field {
	case "users":
		rows, err := r.m.ListUsers(ctx)
		return list(rows, err)
	case "posts":
		rows, err := r.m.ListPosts(ctx)
		return list(rows, err)
	case "profiles":
		rows, err := r.m.ListProfiles(ctx)
		return list(rows, err)
	case "memberTypes":
		rows, err := r.m.ListMemberTypes(ctx)
		return list(rows, err)
	case "user":
		row, err := r.m.GetUser(ctx, stringArg(args, "id"))
		return orNull(row, err)
	case "post":
		row, err := r.m.GetPost(ctx, stringArg(args, "id"))
		return orNull(row, err)
	case "profile":
		row, err := r.m.GetProfile(ctx, stringArg(args, "id"))
		return orNull(row, err)
	case "memberType":
		row, err := r.m.GetMemberType(ctx, stringArg(args, "id"))
		return orNull(row, err)
	}
	return nil, fmt.Errorf("unknown query field %q", field)
}

// orNull turns a missing row into a GraphQL null.
func orNull[T any](row T, err error) (any, error) {
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// list reports an empty table as [] rather than null.
func list[T any](rows []T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}
