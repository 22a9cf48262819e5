package reqid

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background(), "")
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("generated id %q is not a uuid: %v", id, err)
	}
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("expected %s from context, got %s ok=%v", id, got, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected id in empty context")
	}
}

func TestKeepsIncomingID(t *testing.T) {
	ctx, id := NewContext(context.Background(), "abc-123")
	got, _ := FromContext(ctx)
	if id != "abc-123" || got != "abc-123" {
		t.Fatalf("incoming id not kept: %s %s", id, got)
	}
}
