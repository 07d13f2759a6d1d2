package domain

import (
	"testing"
	"time"
)

func TestIdempotency_UniqueAndRoundTrip(t *testing.T) {
	db := newDomainDB(t)
	now := time.Now().UTC()

	rec := &Idempotency{
		ID:        "id-1",
		UserID:    "u1",
		Scope:     "chat",
		Key:       "k1",
		ResultID:  "q1",
		Status:    200,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.UserID != "u1" || got.Scope != "chat" || got.Key != "k1" || got.ResultID != "q1" || got.Status != 200 {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt should be set by autoCreateTime")
	}

	// (user_id, scope, key) must be unique.
	dup := &Idempotency{ID: "id-2", UserID: "u1", Scope: "chat", Key: "k1", ResultID: "q2", Status: 200, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected UNIQUE constraint violation on (user_id, scope, key)")
	}

	// Same key under another scope is fine.
	other := &Idempotency{ID: "id-3", UserID: "u1", Scope: "reset", Key: "k1", ResultID: "q3", Status: 200, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("insert other scope: %v", err)
	}
}
