// Chat HTTP handlers.
//
// This file exposes the assistant and its session resources:
//   - POST   /chat                        (ask; idempotent with Idempotency-Key)
//   - GET    /chat/history                (caller's query log, paginated, ETag)
//   - POST   /chat/reset                  (drop the transient context)
//   - GET    /chat/sessions               (caller's chat sessions)
//   - GET    /chat/sessions/{id}/history  (transcript of one session)
//   - PATCH  /chat/sessions/{id}          (rename, owner only)
//
// It also holds the handler wiring shared with unit_handler.go. Handlers are
// transport-thin: they validate input, call application services, and
// translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/hr-backoffice/internal/domain"
	"github.com/tbourn/hr-backoffice/internal/http/middleware"
	"github.com/tbourn/hr-backoffice/internal/repo"
	"github.com/tbourn/hr-backoffice/internal/services"
	"github.com/tbourn/hr-backoffice/internal/session"
	"github.com/tbourn/hr-backoffice/internal/utils"
)

//
// Service contracts (context-aware)
//

// UnitService defines structural unit operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type UnitService interface {
	Create(ctx context.Context, actor string, in services.CreateUnitInput) (*domain.StructuralUnit, error)
	Update(ctx context.Context, actor string, id uint, in services.UpdateUnitInput) (*domain.StructuralUnit, error)
	Delete(ctx context.Context, actor string, id uint) error
	HardDelete(ctx context.Context, id uint) (int, error)
	Get(ctx context.Context, id uint) (*services.UnitDetail, error)
	List(ctx context.Context, customType string) ([]domain.StructuralUnit, error)
	History(ctx context.Context, id uint, limit int) ([]services.HistoryEntry, error)
	Outline(ctx context.Context) (string, error)
	Diagram(ctx context.Context, id uint) ([]byte, error)
}

// ChatSessionService defines read and rename operations on chat sessions.
type ChatSessionService interface {
	Rename(ctx context.Context, id uint, name, userID string) (*domain.ChatSession, error)
	List(ctx context.Context, userID string) ([]domain.ChatSession, error)
	Transcript(ctx context.Context, id uint, userID string) (*services.Transcript, error)
	History(ctx context.Context, userID string, page, pageSize int) ([]domain.AIQuery, int64, error)
}

// AssistantService answers prompts and resets the transient context.
type AssistantService interface {
	Ask(ctx context.Context, in services.AskInput) (*services.AskResult, error)
	Reset(ctx context.Context, userID string, state session.State, newSession bool, name string) (session.State, *domain.ChatSession, error)
}

//
// Handler wiring
//

// Options carries transport-level settings for Handlers.
type Options struct {
	// DB backs ETag stats and idempotency records; nil disables both.
	DB *gorm.DB
	// IdempotencyTTL bounds how long a key replays; <= 0 means 24h.
	IdempotencyTTL time.Duration
	// MaxMessageRunes caps POST /chat messages; <= 0 means 1000.
	MaxMessageRunes int
}

// Handlers groups HTTP endpoints for units and the assistant. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	unitSvc UnitService
	sessSvc ChatSessionService
	asstSvc AssistantService
	opts    Options
}

// New constructs and returns a Handlers instance bound to the given services.
func New(unitSvc UnitService, sessSvc ChatSessionService, asstSvc AssistantService, opts Options) *Handlers {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.MaxMessageRunes <= 0 {
		opts.MaxMessageRunes = 1000
	}
	return &Handlers{unitSvc: unitSvc, sessSvc: sessSvc, asstSvc: asstSvc, opts: opts}
}

// userID extracts the authenticated user id from Gin context (set by the
// Identity middleware). If absent, it falls back to the "X-User-ID" header
// and finally to middleware.AnonymousUser. It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(middleware.HeaderUserID)); h != "" {
			return h
		}
	}
	return middleware.AnonymousUser
}

// actorID is the identity recorded in unit history. Anonymous callers are
// recorded as the system actor rather than the demo fallback.
func actorID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

//
// DTOs
//

// ChatRequest is the JSON payload for POST /chat.
type ChatRequest struct {
	// Message is the user prompt (1–1000 chars).
	Message string `json:"message" binding:"required" example:"How many vacation days do I have left?"`
	// Name optionally names the chat session when it is first created.
	Name string `json:"name" example:"Leave questions"`
}

// ChatResponse carries the assistant's reply.
type ChatResponse struct {
	Response string `json:"response" example:"Full-time employees get 25 days per year."`
	// Kind is "answer", "structure" or "too_large".
	Kind string `json:"kind" example:"answer"`
}

// ResetRequest is the optional JSON payload for POST /chat/reset.
type ResetRequest struct {
	// NewSession starts a brand-new chat session right away.
	NewSession bool `json:"new_session" example:"true"`
	// Name names the new session.
	Name string `json:"name" example:"Benefits"`
}

// ResetResponse reports the session the next prompt will use, if any.
type ResetResponse struct {
	Status      string              `json:"status" example:"ok"`
	ChatSession *domain.ChatSession `json:"chat_session,omitempty"`
}

// RenameSessionRequest is the JSON payload for renaming a chat session.
type RenameSessionRequest struct {
	Name string `json:"name" binding:"required" example:"Payroll questions"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ChatHistoryResponse wraps a page of the caller's query log.
type ChatHistoryResponse struct {
	Items      []domain.AIQuery `json:"items"`
	Pagination Pagination       `json:"pagination"`
}

// ListSessionsResponse wraps the caller's chat sessions.
type ListSessionsResponse struct {
	Sessions []domain.ChatSession `json:"sessions"`
}

// TranscriptResponse is the ordered history of one chat session.
type TranscriptResponse struct {
	Session domain.ChatSession `json:"session"`
	Turns   []domain.ChatTurn  `json:"turns"`
	Queries []domain.AIQuery   `json:"queries"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

func paginate(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// checkETag sets a weak ETag built from (prefix, count, latest) and reports
// whether the request's If-None-Match already matches it, in which case a
// 304 has been written.
func checkETag(c *gin.Context, prefix string, count int64, latest *time.Time) bool {
	var ts int64
	if latest != nil {
		ts = latest.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%d:%d"`, prefix, count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// parseID reads a positive integer path parameter.
func parseID(c *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		failField(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer", name)
		return 0, false
	}
	return uint(n), true
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
// line endings become LF, runs of blank lines collapse to one, and
// surrounding whitespace is trimmed.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// Chat godoc
// @ID          chat
// @Summary     Ask the HR assistant
// @Description Answers a prompt. Questions about the company structure are answered locally from
// @Description the unit outline; prompts above the token ceiling get a fixed reply with status 200.
// @Description Supports idempotency via the Idempotency-Key header (same key → same answer).
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.ChatRequest  true  "Prompt"
//
// @Success     200  {object}  handlers.ChatResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     502  {object}  handlers.ErrorResponse  "Completion API failed"
// @Router      /chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	ctx := c.Request.Context()

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failField(c, http.StatusBadRequest, ErrCodeBadRequest, "message required", "message")
		return
	}
	msg := sanitizeContent(req.Message)
	if msg == "" {
		failField(c, http.StatusBadRequest, ErrCodeBadRequest, "message required", "message")
		return
	}
	if utf8.RuneCountInString(msg) > h.opts.MaxMessageRunes {
		failField(c, http.StatusBadRequest, ErrCodeBadRequest,
			fmt.Sprintf("message too long: max %d characters", h.opts.MaxMessageRunes), "message")
		return
	}

	uid := userID(c)
	idem, hasKey := middleware.IdempotencyFrom(c)

	// Idempotency (replay path).
	if hasKey && h.opts.DB != nil {
		if rec, err := repo.GetIdempotency(ctx, h.opts.DB, idem.User, idem.Scope, idem.Key, time.Now().UTC()); err == nil {
			if prev, err := repo.GetAIQuery(ctx, h.opts.DB, rec.ResultID); err == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, ChatResponse{Response: prev.Response, Kind: services.KindAnswer})
				return
			}
		}
	}

	res, err := h.asstSvc.Ask(ctx, services.AskInput{
		UserID:      uid,
		Prompt:      msg,
		SessionName: req.Name,
		State:       middleware.SessionState(c),
	})
	if err != nil {
		failErr(c, err, ErrCodeAnswerFailed)
		return
	}

	if res.Kind == services.KindAnswer {
		if err := middleware.SaveSessionState(c, res.State); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("session save failed")
		}
		// Idempotency (store path) – best effort.
		if hasKey && h.opts.DB != nil && res.QueryID != "" {
			_, _ = repo.CreateIdempotency(ctx, h.opts.DB, idem.User, idem.Scope, idem.Key, res.QueryID, http.StatusOK, h.opts.IdempotencyTTL)
		}
	}

	ok(c, http.StatusOK, ChatResponse{Response: res.Answer, Kind: res.Kind})
}

// ChatHistory godoc
// @ID          chatHistory
// @Summary     List the caller's assistant queries
// @Description Returns the caller's query log, newest first. Supports weak ETag via If-None-Match.
// @Tags        Chat
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID"                      example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"   example(W/\"queries:3:0\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ChatHistoryResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chat/history [get]
func (h *Handlers) ChatHistory(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	// ETag pre-check (best effort).
	if h.opts.DB != nil {
		if count, latest, err := repo.AIQueriesStats(ctx, h.opts.DB, uid); err == nil {
			if checkETag(c, "queries:"+uid, count, latest) {
				return
			}
		}
	}

	page, pageSize := clampPagination(c)
	items, total, err := h.sessSvc.History(ctx, uid, page, pageSize)
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	if items == nil {
		items = []domain.AIQuery{}
	}
	ok(c, http.StatusOK, ChatHistoryResponse{Items: items, Pagination: paginate(page, pageSize, total)})
}

// ResetChat godoc
// @ID          resetChat
// @Summary     Reset the assistant context
// @Description Discards the transient context of this browser session. With new_session=true a
// @Description fresh chat session is created immediately. Logged queries are kept.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string                 false "User ID"  example(user123)
// @Param       body       body    handlers.ResetRequest  false "Reset options"
//
// @Success     200  {object}  handlers.ResetResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/reset [post]
func (h *Handlers) ResetChat(c *gin.Context) {
	var req ResetRequest
	// The body is optional.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	st, cs, err := h.asstSvc.Reset(c.Request.Context(), userID(c), middleware.SessionState(c), req.NewSession, req.Name)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	if st.Empty() {
		err = middleware.ClearSessionState(c)
	} else {
		err = middleware.SaveSessionState(c, st)
	}
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("session reset failed")
	}
	ok(c, http.StatusOK, ResetResponse{Status: "ok", ChatSession: cs})
}

// ListSessions godoc
// @ID          listChatSessions
// @Summary     List the caller's chat sessions
// @Description Returns the caller's chat sessions, most recently active first.
// @Tags        Chat
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
//
// @Success     200  {object}  handlers.ListSessionsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	items, err := h.sessSvc.List(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	if items == nil {
		items = []domain.ChatSession{}
	}
	ok(c, http.StatusOK, ListSessionsResponse{Sessions: items})
}

// SessionHistory godoc
// @ID          chatSessionHistory
// @Summary     Get a chat session transcript
// @Description Returns the ordered turns and logged queries of a session owned by the caller.
// @Tags        Chat
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"          example(user123)
// @Param       id         path    int     true  "Chat session ID"  example(12)
//
// @Success     200  {object}  handlers.TranscriptResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /chat/sessions/{id}/history [get]
func (h *Handlers) SessionHistory(c *gin.Context) {
	id, okID := parseID(c, "id")
	if !okID {
		return
	}
	tr, err := h.sessSvc.Transcript(c.Request.Context(), id, userID(c))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	resp := TranscriptResponse{Session: tr.Session, Turns: tr.Turns, Queries: tr.Queries}
	if resp.Turns == nil {
		resp.Turns = []domain.ChatTurn{}
	}
	if resp.Queries == nil {
		resp.Queries = []domain.AIQuery{}
	}
	ok(c, http.StatusOK, resp)
}

// RenameSession godoc
// @ID          renameChatSession
// @Summary     Rename a chat session
// @Description Renames a chat session owned by the caller. Names are whitespace-normalized and clipped to 255 characters.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string                         false "User ID"          example(user123)
// @Param       id         path    int                            true  "Chat session ID"  example(12)
// @Param       body       body    handlers.RenameSessionRequest  true  "New name"
//
// @Success     200  {object}  domain.ChatSession
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /chat/sessions/{id} [patch]
func (h *Handlers) RenameSession(c *gin.Context) {
	id, okID := parseID(c, "id")
	if !okID {
		return
	}
	var req RenameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		failField(c, http.StatusBadRequest, ErrCodeBadRequest, "name required", "name")
		return
	}
	cs, err := h.sessSvc.Rename(c.Request.Context(), id, req.Name, userID(c))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, cs)
}
