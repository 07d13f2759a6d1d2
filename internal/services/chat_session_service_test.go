package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/hr-backoffice/internal/repo"
)

func TestChatSessionService_GetOrCreate_Idempotent(t *testing.T) {
	s := &ChatSessionService{DB: newSvcDB(t)}
	ctx := context.Background()

	a, err := s.GetOrCreate(ctx, "11111111-1111-1111-1111-111111111111", "u1", "")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	b, err := s.GetOrCreate(ctx, a.SessionID, "u1", "  Payroll \n questions ")
	if err != nil {
		t.Fatalf("GetOrCreate again: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("expected the same session, got %d and %d", a.ID, b.ID)
	}
	if b.Name != "Payroll questions" {
		t.Fatalf("blank name not backfilled: %q", b.Name)
	}
	c, _ := s.GetOrCreate(ctx, a.SessionID, "u1", "Other")
	if c.Name != "Payroll questions" {
		t.Fatalf("existing name must be kept, got %q", c.Name)
	}
}

func TestChatSessionService_AppendExchangeAndTranscript(t *testing.T) {
	s := &ChatSessionService{DB: newSvcDB(t)}
	ctx := context.Background()
	cs, _ := s.GetOrCreate(ctx, "22222222-2222-2222-2222-222222222222", "u1", "")

	if err := s.AppendExchange(ctx, nil, cs, "q1", "a1"); err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}
	if err := s.AppendExchange(ctx, nil, cs, "q2", "a2"); err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}

	tr, err := s.Transcript(ctx, cs.ID, "u1")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	var got []string
	for _, turn := range tr.Turns {
		got = append(got, turn.Role+":"+turn.Content)
	}
	if want := "user:q1 assistant:a1 user:q2 assistant:a2"; strings.Join(got, " ") != want {
		t.Fatalf("transcript = %v, want %s", got, want)
	}

	if _, err := s.Transcript(ctx, cs.ID, "u2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := s.Transcript(ctx, 999, "u1"); !errors.Is(err, ErrChatSessionNotFound) {
		t.Fatalf("expected ErrChatSessionNotFound, got %v", err)
	}
}

func TestChatSessionService_Rename(t *testing.T) {
	s := &ChatSessionService{DB: newSvcDB(t)}
	ctx := context.Background()
	cs, _ := s.GetOrCreate(ctx, "33333333-3333-3333-3333-333333333333", "owner", "")

	if _, err := s.Rename(ctx, cs.ID, "Stolen", "intruder"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	out, err := s.Rename(ctx, cs.ID, strings.Repeat("x", NameMaxLen+10), "owner")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if len([]rune(out.Name)) != NameMaxLen {
		t.Fatalf("name not clipped: %d runes", len([]rune(out.Name)))
	}
	stored, _ := repo.GetChatSession(ctx, s.DB, cs.ID)
	if stored.Name != out.Name {
		t.Fatalf("rename not persisted")
	}
	if _, err := s.Rename(ctx, 999, "x", "owner"); !errors.Is(err, ErrChatSessionNotFound) {
		t.Fatalf("expected ErrChatSessionNotFound, got %v", err)
	}
}

func TestChatSessionService_ListAndHistory(t *testing.T) {
	s := &ChatSessionService{DB: newSvcDB(t)}
	ctx := context.Background()
	first, _ := s.GetOrCreate(ctx, "44444444-4444-4444-4444-444444444444", "u1", "first")
	s.GetOrCreate(ctx, "55555555-5555-5555-5555-555555555555", "u2", "not mine")

	if err := repo.TouchChatSession(ctx, s.DB, first.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	second, _ := s.GetOrCreate(ctx, "66666666-6666-6666-6666-666666666666", "u1", "second")

	list, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Fatalf("unexpected sessions %+v", list)
	}

	items, total, err := s.History(ctx, "u1", 0, 0)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("expected empty history, got %v %d %v", items, total, err)
	}
	for _, m := range []string{"one", "two", "three"} {
		if _, err := repo.CreateAIQuery(ctx, s.DB, "u1", m, "ok", &first.ID); err != nil {
			t.Fatalf("CreateAIQuery: %v", err)
		}
	}
	items, total, err = s.History(ctx, "u1", 1, 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if total != 3 || len(items) != 2 || items[0].Message != "three" {
		t.Fatalf("unexpected page total=%d items=%+v", total, items)
	}
}
