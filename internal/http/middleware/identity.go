// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. Authentication happens upstream
// (a gateway or SSO proxy) and arrives as two headers:
//
//   - X-User-ID:   stable identifier, stored under "userID"
//   - X-User-Name: display name used in unit history
//
// When both are present the pair is upserted through the injected
// UserUpserter, so audit records can later be rendered with a name.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID carries the authenticated caller id.
	HeaderUserID = "X-User-ID"
	// HeaderUserName carries the caller display name.
	HeaderUserName = "X-User-Name"

	maxUserIDLen   = 64
	maxUserNameLen = 150
)

// UserUpserter stores or refreshes a (id, username) pair.
type UserUpserter func(ctx context.Context, id, username string) error

// Identity reads the identity headers into the Gin context. Requests without
// X-User-ID pass through anonymously; handlers fall back to a demo user.
// An oversized id is rejected with 400 since it cannot be persisted.
// Upsert failures are logged and never fail the request.
func Identity(upsert UserUpserter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if id == "" {
			c.Next()
			return
		}
		if len(id) > maxUserIDLen {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_user_id",
				"message":    "X-User-ID is too long",
			})
			return
		}
		c.Set("userID", id)

		name := strings.TrimSpace(c.GetHeader(HeaderUserName))
		if name != "" && upsert != nil {
			if utf8.RuneCountInString(name) > maxUserNameLen {
				name = string([]rune(name)[:maxUserNameLen])
			}
			if err := upsert(c.Request.Context(), id, name); err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("user upsert failed")
			}
		}
		c.Next()
	}
}
