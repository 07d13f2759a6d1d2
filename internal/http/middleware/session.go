// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file binds the assistant's per-browser state to an HttpOnly cookie.
// Session() resolves the cookie to a session.State before the handler runs;
// handlers read it with SessionState and persist the updated value with
// SaveSessionState. The state never lives in a package-level variable.
package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/hr-backoffice/internal/session"
)

// SessionCookieName is the cookie holding the opaque browser-session id.
const SessionCookieName = "hr_session"

const (
	ctxKeySessionID    = "session.id"
	ctxKeySessionState = "session.state"
	ctxKeySessionStore = "session.store"
	ctxKeySessionOpts  = "session.opts"
)

// SessionOptions configures Session.
type SessionOptions struct {
	Store session.Store
	// TTL is the cookie lifetime; <= 0 uses session.DefaultTTL.
	TTL time.Duration
	// Secure marks the cookie HTTPS-only.
	Secure bool
	// Path scopes the cookie; empty means "/".
	Path string
}

// Session loads the caller's State from opts.Store. A missing, malformed or
// expired cookie yields an empty State under a fresh id; the cookie is only
// written once a handler saves something. Store failures degrade to an
// empty State with a warning so the assistant stays usable.
func Session(opts SessionOptions) gin.HandlerFunc {
	if opts.TTL <= 0 {
		opts.TTL = session.DefaultTTL
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	return func(c *gin.Context) {
		id, _ := c.Cookie(SessionCookieName)
		var st session.State
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		} else {
			loaded, err := opts.Store.Load(c.Request.Context(), id)
			switch {
			case err == nil:
				st = loaded
			case errors.Is(err, session.ErrNotFound):
			default:
				LoggerFrom(c).Warn().Err(err).Msg("session load failed")
			}
		}
		c.Set(ctxKeySessionID, id)
		c.Set(ctxKeySessionState, st)
		c.Set(ctxKeySessionStore, opts.Store)
		c.Set(ctxKeySessionOpts, opts)
		c.Next()
	}
}

// SessionState returns the State loaded by Session, or an empty State.
func SessionState(c *gin.Context) session.State {
	if v, ok := c.Get(ctxKeySessionState); ok {
		if st, ok := v.(session.State); ok {
			return st
		}
	}
	return session.State{}
}

// SaveSessionState persists st and refreshes the cookie. An empty State
// deletes the stored entry instead.
func SaveSessionState(c *gin.Context, st session.State) error {
	store, opts, id, ok := sessionBinding(c)
	if !ok {
		return errors.New("session middleware not installed")
	}
	c.Set(ctxKeySessionState, st)
	if st.Empty() {
		return store.Delete(c.Request.Context(), id)
	}
	if err := store.Save(c.Request.Context(), id, st); err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, id, int(opts.TTL.Seconds()), opts.Path, "", opts.Secure, true)
	return nil
}

// ClearSessionState drops the stored State and expires the cookie.
func ClearSessionState(c *gin.Context) error {
	store, opts, id, ok := sessionBinding(c)
	if !ok {
		return errors.New("session middleware not installed")
	}
	c.Set(ctxKeySessionState, session.State{})
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, opts.Path, "", opts.Secure, true)
	return store.Delete(c.Request.Context(), id)
}

func sessionBinding(c *gin.Context) (session.Store, SessionOptions, string, bool) {
	sv, ok1 := c.Get(ctxKeySessionStore)
	ov, ok2 := c.Get(ctxKeySessionOpts)
	iv, ok3 := c.Get(ctxKeySessionID)
	if !ok1 || !ok2 || !ok3 {
		return nil, SessionOptions{}, "", false
	}
	store, _ := sv.(session.Store)
	opts, _ := ov.(SessionOptions)
	id, _ := iv.(string)
	return store, opts, id, store != nil && id != ""
}
