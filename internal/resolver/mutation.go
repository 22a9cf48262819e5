package resolver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hanpama/socialgraph/internal/apperr"
	"github.com/hanpama/socialgraph/internal/entity"
)

type changeUserInput struct {
	ID string `json:"id"`
	entity.UserPatch
}

type changePostInput struct {
	ID string `json:"id"`
	entity.PostPatch
}

type changeProfileInput struct {
	ID string `json:"id"`
	entity.ProfilePatch
}

type changeMemberTypeInput struct {
	ID string `json:"id"`
	entity.MemberTypePatch
}

type subscribeInput struct {
	ID            string `json:"id"`
	SubscribeToID string `json:"subscribeToId"`
}

type unsubscribeInput struct {
	ID                string `json:"id"`
	UnsubscribeFromID string `json:"unsubscribeFromId"`
}

func (r *Runtime) mutate(ctx context.Context, field string, args map[string]any) (any, error) {
	op := "mutation." + field
	switch field {
	case "createUser":
		var in entity.CreateUser
		if err := decodeInput(op, args, &in, false); err != nil {
			return nil, err
		}
		return r.m.CreateUser(ctx, in)
	case "createPost":
		var in entity.CreatePost
		if err := decodeInput(op, args, &in, false); err != nil {
			return nil, err
		}
		return r.m.CreatePost(ctx, in)
	case "createProfile":
		var in entity.CreateProfile
		if err := decodeInput(op, args, &in, false); err != nil {
			return nil, err
		}
		return r.m.CreateProfile(ctx, in)
	case "changeUser":
		var in changeUserInput
		if err := decodeInput(op, args, &in, true); err != nil {
			return nil, err
		}
		return r.m.ChangeUser(ctx, in.ID, in.UserPatch)
	case "changePost":
		var in changePostInput
		if err := decodeInput(op, args, &in, true); err != nil {
			return nil, err
		}
		return r.m.ChangePost(ctx, in.ID, in.PostPatch)
	case "changeProfile":
		var in changeProfileInput
		if err := decodeInput(op, args, &in, true); err != nil {
			return nil, err
		}
		return r.m.ChangeProfile(ctx, in.ID, in.ProfilePatch)
	case "changeMemberType":
		var in changeMemberTypeInput
		if err := decodeInput(op, args, &in, true); err != nil {
			return nil, err
		}
		return r.m.ChangeMemberType(ctx, in.ID, in.MemberTypePatch)
	case "subscribeTo":
		var in subscribeInput
		if err := decodeInput(op, args, &in, true); err != nil {
			return nil, err
		}
		return r.m.Subscribe(ctx, in.ID, in.SubscribeToID)
	case "unsubscribeFrom":
		var in unsubscribeInput
		if err := decodeInput(op, args, &in, true); err != nil {
			return nil, apperr.BadRequest(op, err.Error())
		}
		return r.m.Unsubscribe(ctx, in.ID, in.UnsubscribeFromID)
	case "deleteUser":
		return r.m.DeleteUser(ctx, stringArg(args, "id"))
	case "deletePost":
		return r.m.DeletePost(ctx, stringArg(args, "id"))
	case "deleteProfile":
		return r.m.DeleteProfile(ctx, stringArg(args, "id"))
	}
	return nil, fmt.Errorf("unknown mutation field %q", field)
}

// decodeInput decodes the coerced input argument into dst. A null input
// leaves dst empty unless required is set; create inputs then fail their own
// required-field check.
func decodeInput(op string, args map[string]any, dst any, required bool) error {
	raw := args["input"]
	if raw == nil {
		if required {
			return apperr.Validation(op, "input is required")
		}
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%s: encode input: %w", op, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return apperr.Validation(op, "malformed input: "+err.Error())
	}
	return nil
}
