package data

import (
	"context"
	"testing"
	"time"
)

func TestMessagesSaveAndList(t *testing.T) {
	c := setupDB(t)
	msgs := NewMessagesStore(c.MessagesCollection())
	ctx := context.Background()

	first, err := msgs.SaveMessage(ctx, &ChatMessage{PickupID: "p1", SenderID: "h1", SenderRole: RoleHousehold, Message: "is it today?"})
	if err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := msgs.SaveMessage(ctx, &ChatMessage{PickupID: "p1", SenderID: "c1", SenderRole: RoleCollector, Message: "on my way"}); err != nil {
		t.Fatalf("SaveMessage 2 failed: %v", err)
	}
	if _, err := msgs.SaveMessage(ctx, &ChatMessage{PickupID: "p2", SenderID: "h2", SenderRole: RoleHousehold, Message: "other"}); err != nil {
		t.Fatalf("SaveMessage 3 failed: %v", err)
	}

	history, err := msgs.ListMessages(ctx, "p1")
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].ID != first.ID || history[1].Timestamp.Before(history[0].Timestamp) {
		t.Fatalf("messages not in ascending order: %+v", history)
	}

	empty, err := msgs.ListMessages(ctx, "none")
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
}
