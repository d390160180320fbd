package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestService_AppendRequiresActionActorAndTarget(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)

	for _, e := range []Event{
		{ActorID: "a", TargetID: "t"},
		{Action: ActionRefundCall, TargetID: "t"},
		{Action: ActionRefundCall, ActorID: "a"},
	} {
		if err := svc.Append(context.Background(), e); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("expected invalid event for %+v, got %v", e, err)
		}
	}
}

func TestService_RecordCapturesActorAndDetails(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	actor := Actor{ID: "admin-1", Role: "admin", IP: "1.2.3.4"}
	if err := svc.Record(context.Background(), actor, ActionAddCredits, TargetUser, "u1", "u1", "goodwill", map[string]any{"amount": "5.00"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.ID == "" || e.CreatedAt.IsZero() || e.IPAddress != "1.2.3.4" || e.ActorRole != "admin" {
		t.Fatalf("unexpected event %+v", e)
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(e.Metadata), &meta); err != nil || meta["amount"] != "5.00" {
		t.Fatalf("unexpected metadata %q (%v)", e.Metadata, err)
	}
}

func TestService_ListNewestFirst(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	actor := Actor{ID: "admin-1"}
	_ = svc.Record(context.Background(), actor, ActionToggleRate, TargetRate, "us", "", "", nil)
	_ = svc.Record(context.Background(), actor, ActionDeleteUser, TargetUser, "u2", "u2", "", nil)

	evs, err := svc.List(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != 2 || evs[0].Action != ActionDeleteUser {
		t.Fatalf("expected newest first, got %+v", evs)
	}
}

func TestService_RecordReturnsRepoError(t *testing.T) {
	repo := NewMemoryRepo()
	repo.Err = errors.New("db down")
	svc := NewService(repo, nil)

	if err := svc.Record(context.Background(), Actor{ID: "a"}, ActionRefundCall, TargetCall, "c1", "u1", "", nil); err == nil {
		t.Fatalf("expected repo error surfaced")
	}
}
