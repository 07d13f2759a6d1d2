package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIdentity_SetsUserAndUpserts(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var gotID, gotName string
	calls := 0
	upsert := func(_ context.Context, id, name string) error {
		calls++
		gotID, gotName = id, name
		return nil
	}

	r := gin.New()
	r.Use(Identity(upsert))
	r.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, idempotencyUser(c)) })

	// both headers: stored and upserted
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, " u-1 ")
	req.Header.Set(HeaderUserName, "Jane Doe")
	r.ServeHTTP(w, req)
	if w.Body.String() != "u-1" {
		t.Fatalf("userID = %q; want u-1", w.Body.String())
	}
	if calls != 1 || gotID != "u-1" || gotName != "Jane Doe" {
		t.Fatalf("upsert calls=%d id=%q name=%q", calls, gotID, gotName)
	}

	// id only: stored, not upserted
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "u-2")
	r.ServeHTTP(w, req)
	if w.Body.String() != "u-2" || calls != 1 {
		t.Fatalf("id-only request: body=%q calls=%d", w.Body.String(), calls)
	}

	// anonymous: demo fallback
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Body.String() != "demo-user" {
		t.Fatalf("anonymous userID = %q", w.Body.String())
	}
}

func TestIdentity_RejectsLongIDAndIgnoresUpsertErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity(func(context.Context, string, string) error { return errors.New("db down") }))
	r.GET("/me", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, strings.Repeat("x", maxUserIDLen+1))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("long id: expected 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "u-3")
	req.Header.Set(HeaderUserName, "Sam")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("upsert failure must not fail the request, got %d", w.Code)
	}
}
