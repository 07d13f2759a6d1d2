// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on retried writes
// (POST /units, POST /chat). A valid key is resolved into an IdempotencyRef
// (caller, route scope, key) that handlers use both to look up a stored
// result and to record a new one, so the two sides always agree on the
// triple. When the injected lookup already knows the ref, the request is
// flagged as a replay and exempted from rate limiting.
package middleware

import (
	"context"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-chosen key of a retryable write.
const HeaderIdempotencyKey = "Idempotency-Key"

// AnonymousUser owns keys sent without an X-User-ID.
const AnonymousUser = "demo-user"

const (
	ctxKeyIdemRef    = "idem.ref"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	// maxScopeLen matches the width of the idempotency.scope column.
	maxScopeLen = 64
	// defaultMaxKeyLen matches the width of the idempotency.key column.
	defaultMaxKeyLen = 200
)

// IdempotencyRef identifies one idempotent operation.
type IdempotencyRef struct {
	User  string
	Scope string
	Key   string
}

// IdempotencyLookup reports whether a still-valid result is stored for ref.
// Errors are logged and the request proceeds as a first attempt.
type IdempotencyLookup func(ctx context.Context, ref IdempotencyRef, now time.Time) (bool, error)

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Lookup detects replays; nil disables detection.
	Lookup IdempotencyLookup
	// Now is the clock handed to Lookup; nil means time.Now in UTC.
	Now func() time.Time
}

// IdempotencyValidator rejects malformed keys with 400 and stashes valid
// ones as an IdempotencyRef. Requests without the header pass untouched.
func IdempotencyValidator(opts IdempotencyOptions) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxKeyLen
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !validIdempotencyKey(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
				"field":      HeaderIdempotencyKey,
			})
			return
		}

		ref := IdempotencyRef{User: idempotencyUser(c), Scope: IdempotencyScope(c), Key: key}
		c.Set(ctxKeyIdemRef, ref)

		if opts.Lookup != nil {
			found, err := opts.Lookup(c.Request.Context(), ref, now())
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Str("scope", ref.Scope).Msg("idempotency lookup failed")
			case found:
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

// IdempotencyFrom returns the ref stashed by IdempotencyValidator.
func IdempotencyFrom(c *gin.Context) (IdempotencyRef, bool) {
	v, ok := c.Get(ctxKeyIdemRef)
	if !ok {
		return IdempotencyRef{}, false
	}
	ref, ok := v.(IdempotencyRef)
	return ref, ok && ref.Key != ""
}

// IsReplay reports whether the lookup found a stored result for this request.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Get(ctxKeyIdemReplay)
	v, _ := b.(bool)
	return v
}

// IdempotencyScope is "<METHOD> <route pattern>", so one key may be reused
// on different endpoints. Unmatched requests use the raw path.
func IdempotencyScope(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	return scopeOf(c.Request.Method, route)
}

// scopeOf joins method and route and clips the result to maxScopeLen bytes
// without splitting a multi-byte rune.
func scopeOf(method, route string) string {
	s := method + " " + route
	if len(s) <= maxScopeLen {
		return s
	}
	cut := maxScopeLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// validIdempotencyKey accepts letters, digits and . _ ~ - : only.
func validIdempotencyKey(k string) bool {
	for i := 0; i < len(k); i++ {
		b := k[i]
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		case b == '.', b == '_', b == '~', b == '-', b == ':':
		default:
			return false
		}
	}
	return true
}

func idempotencyUser(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return AnonymousUser
}
