// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file guards administrative routes with a shared secret sent in the
// X-Admin-Token header.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderAdminToken carries the administrative secret.
const HeaderAdminToken = "X-Admin-Token"

// AdminToken admits requests whose X-Admin-Token equals token, compared in
// constant time. An empty token rejects everything.
func AdminToken(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(HeaderAdminToken))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "admin token required",
			})
			return
		}
		c.Next()
	}
}
