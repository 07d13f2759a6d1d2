package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&StructuralUnit{}, &UnitHistory{}, &User{}, &ChatSession{}, &ChatTurn{}, &AIQuery{}, &Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		StructuralUnit{}.TableName(): "structural_units",
		UnitHistory{}.TableName():    "structural_unit_history",
		User{}.TableName():           "users",
		ChatSession{}.TableName():    "chat_sessions",
		ChatTurn{}.TableName():       "chat_turns",
		AIQuery{}.TableName():        "ai_queries",
		Idempotency{}.TableName():    "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes(t *testing.T) {
	db := newDomainDB(t)
	m := db.Migrator()

	checks := []struct {
		model any
		index string
	}{
		{&StructuralUnit{}, "idx_units_parent_name"},
		{&UnitHistory{}, "idx_history_entity"},
		{&ChatSession{}, "idx_user_sessions"},
		{&ChatTurn{}, "idx_session_turns"},
		{&Idempotency{}, "ux_user_scope_key"},
	}
	for _, c := range checks {
		if !m.HasIndex(c.model, c.index) {
			t.Fatalf("expected index %s on %T", c.index, c.model)
		}
	}
}

func TestStructuralUnit_DefaultsAndRestrict(t *testing.T) {
	db := newDomainDB(t)

	root := &StructuralUnit{Name: "Company", IsActive: true, Path: "/1/"}
	if err := db.Create(root).Error; err != nil {
		t.Fatalf("insert root: %v", err)
	}
	child := &StructuralUnit{Name: "Engineering", ParentID: &root.ID, IsActive: true, Level: 1}
	if err := db.Create(child).Error; err != nil {
		t.Fatalf("insert child: %v", err)
	}

	var got StructuralUnit
	if err := db.Preload("Children").First(&got, root.ID).Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if !got.IsActive || got.CustomType != "" || len(got.Children) != 1 || got.Children[0].Name != "Engineering" {
		t.Fatalf("unexpected root: %+v", got)
	}

	// RESTRICT: a parent with children cannot be removed.
	if err := db.Delete(&StructuralUnit{}, root.ID).Error; err == nil {
		t.Fatalf("expected FK restriction when deleting a parent with children")
	}
}

func TestUnitHistory_TypeCheck(t *testing.T) {
	db := newDomainDB(t)
	now := time.Now().UTC()

	ok := &UnitHistory{EntityKind: EntityStructuralUnit, UnitID: 1, Name: "A", IsActive: true, HistoryType: "+", HistoryDate: now}
	if err := db.Create(ok).Error; err != nil {
		t.Fatalf("insert history: %v", err)
	}
	bad := &UnitHistory{EntityKind: EntityStructuralUnit, UnitID: 1, Name: "A", HistoryType: "x", HistoryDate: now}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected CHECK violation for history_type %q", bad.HistoryType)
	}

	// IsActive=false must persist as false, not the column default.
	del := &UnitHistory{EntityKind: EntityStructuralUnit, UnitID: 1, Name: "A", IsActive: false, HistoryType: "-", HistoryDate: now}
	if err := db.Create(del).Error; err != nil {
		t.Fatalf("insert delete record: %v", err)
	}
	var got UnitHistory
	db.First(&got, del.HistoryID)
	if got.IsActive {
		t.Fatalf("expected inactive snapshot, got %+v", got)
	}
}

func TestChatSession_Cascades(t *testing.T) {
	db := newDomainDB(t)
	now := time.Now().UTC()

	s := &ChatSession{SessionID: "00000000-0000-0000-0000-000000000001", UserID: "u1"}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("insert session: %v", err)
	}
	dup := &ChatSession{SessionID: s.SessionID, UserID: "u2"}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation on session_id")
	}

	turns := []ChatTurn{
		{ID: "t1", ChatSessionID: s.ID, Role: "user", Content: "hi", CreatedAt: now},
		{ID: "t2", ChatSessionID: s.ID, Role: "assistant", Content: "hello", CreatedAt: now.Add(time.Second)},
	}
	if err := db.Create(&turns).Error; err != nil {
		t.Fatalf("insert turns: %v", err)
	}
	if err := db.Create(&ChatTurn{ID: "t3", ChatSessionID: s.ID, Role: "system", Content: "x"}).Error; err == nil {
		t.Fatalf("expected CHECK violation for role")
	}

	q := &AIQuery{ID: "q1", UserID: "u1", Message: "hi", Response: "hello", ChatSessionID: &s.ID}
	if err := db.Create(q).Error; err != nil {
		t.Fatalf("insert query: %v", err)
	}

	if err := db.Delete(&ChatSession{}, s.ID).Error; err != nil {
		t.Fatalf("delete session: %v", err)
	}
	var cnt int64
	db.Model(&ChatTurn{}).Where("chat_session_id = ?", s.ID).Count(&cnt)
	if cnt != 0 {
		t.Fatalf("expected turns to cascade-delete, got %d", cnt)
	}
	var gotQ AIQuery
	if err := db.First(&gotQ, "id = ?", "q1").Error; err != nil {
		t.Fatalf("query row should survive session delete: %v", err)
	}
	if gotQ.ChatSessionID != nil {
		t.Fatalf("expected chat_session_id to be nulled, got %v", *gotQ.ChatSessionID)
	}
}
