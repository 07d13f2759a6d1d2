package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/hr-backoffice/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestAppendHistory_LinksPrevious(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUnit(t, db, "Sales", "", nil)
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	first, err := AppendHistory(ctx, db, *u, "+", strPtr("u1"), t0)
	if err != nil {
		t.Fatalf("AppendHistory +: %v", err)
	}
	if first.PrevHistoryID != nil {
		t.Fatalf("first record must not have a predecessor: %+v", first)
	}

	u.Name = "Sales EMEA"
	second, err := AppendHistory(ctx, db, *u, "~", nil, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("AppendHistory ~: %v", err)
	}
	if second.PrevHistoryID == nil || *second.PrevHistoryID != first.HistoryID {
		t.Fatalf("second record should link to first: %+v", second)
	}
	if second.Path != u.Path || second.HistoryUserID != nil {
		t.Fatalf("unexpected snapshot %+v", second)
	}

	// Records of another unit do not interfere.
	other := seedUnit(t, db, "HR", "", nil)
	o, _ := AppendHistory(ctx, db, *other, "+", nil, t0)
	if o.PrevHistoryID != nil {
		t.Fatalf("other unit should start a new chain: %+v", o)
	}
}

func TestListHistory_NewestFirstAndLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUnit(t, db, "Ops", "", nil)
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	for i, typ := range []string{"+", "~", "-"} {
		if _, err := AppendHistory(ctx, db, *u, typ, nil, t0.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("seed %s: %v", typ, err)
		}
	}

	all, err := ListHistory(ctx, db, u.ID, 0)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(all) != 3 || all[0].HistoryType != "-" || all[2].HistoryType != "+" {
		t.Fatalf("unexpected order %+v", all)
	}

	two, _ := ListHistory(ctx, db, u.ID, 2)
	if len(two) != 2 || two[1].HistoryType != "~" {
		t.Fatalf("unexpected limited list %+v", two)
	}

	byID, err := GetHistoryByIDs(ctx, db, []uint{all[0].HistoryID, all[2].HistoryID})
	if err != nil || len(byID) != 2 {
		t.Fatalf("GetHistoryByIDs: %v %+v", err, byID)
	}

	n, _ := CountHistory(ctx, db, u.ID)
	if n != 3 {
		t.Fatalf("CountHistory = %d", n)
	}
	if err := DeleteHistoryForUnits(ctx, db, []uint{u.ID}); err != nil {
		t.Fatalf("DeleteHistoryForUnits: %v", err)
	}
	if n, _ := CountHistory(ctx, db, u.ID); n != 0 {
		t.Fatalf("expected history removed, got %d", n)
	}
}

func TestUpsertUser_AndResolve(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := UpsertUser(ctx, db, "u1", "alice"); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := UpsertUser(ctx, db, "u1", "alice.s"); err != nil {
		t.Fatalf("UpsertUser again: %v", err)
	}
	names, err := UsernamesByID(ctx, db, []string{"u1", "ghost"})
	if err != nil {
		t.Fatalf("UsernamesByID: %v", err)
	}
	if len(names) != 1 || names["u1"] != "alice.s" {
		t.Fatalf("unexpected names %+v", names)
	}

	var n int64
	db.Model(&domain.User{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected a single user row, got %d", n)
	}
}
