// Package services – ChatSessionService
//
// This file implements ChatSessionService, the durable record of assistant
// conversations. A ChatSession is keyed by an opaque UUID that also lives in
// the caller's transient session state; its transcript (ChatTurn rows)
// mirrors that state so a conversation survives cache loss.
//
// Ownership is enforced on rename and transcript reads; service-level errors
// (ErrChatSessionNotFound, ErrForbidden) let handlers map results
// consistently.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/hr-backoffice/internal/domain"
	"github.com/tbourn/hr-backoffice/internal/repo"
	"github.com/tbourn/hr-backoffice/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NameMaxLen caps stored session names by rune length.
const NameMaxLen = 255

// ChatSessionService manages ChatSession rows and their transcripts.
type ChatSessionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// Transcript is the durable record of one session.
type Transcript struct {
	Session domain.ChatSession
	Turns   []domain.ChatTurn
	Queries []domain.AIQuery
}

// GetOrCreate returns the session with sessionID, creating it for userID
// when it does not exist yet. A blank stored name is backfilled with name.
func (s *ChatSessionService) GetOrCreate(ctx context.Context, sessionID, userID, name string) (*domain.ChatSession, error) {
	return s.GetOrCreateIn(ctx, nil, sessionID, userID, name)
}

// GetOrCreateIn is GetOrCreate on db, which may be a transaction owned by
// the caller; nil uses s.DB.
func (s *ChatSessionService) GetOrCreateIn(ctx context.Context, db *gorm.DB, sessionID, userID, name string) (*domain.ChatSession, error) {
	tr := otel.Tracer("services/ChatSessionService")
	ctx, span := tr.Start(ctx, "GetOrCreate",
		trace.WithAttributes(
			attribute.String("chat.session_id", sessionID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if db == nil {
		db = s.DB
	}
	cs, created, err := repo.GetOrCreateChatSession(ctx, db, sessionID, userID, clipName(normalizeName(name)))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("chat.created", created))
	return cs, nil
}

// AppendExchange writes the user and assistant turns of one exchange to the
// transcript atomically. db may be a transaction owned by the caller; nil
// uses s.DB.
func (s *ChatSessionService) AppendExchange(ctx context.Context, db *gorm.DB, cs *domain.ChatSession, prompt, answer string) error {
	tr := otel.Tracer("services/ChatSessionService")
	ctx, span := tr.Start(ctx, "AppendExchange",
		trace.WithAttributes(attribute.Int64("chat.id", int64(cs.ID))),
	)
	defer span.End()

	if db == nil {
		db = s.DB
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if _, err := repo.CreateTurn(ctx, tx, cs.ID, repo.RoleUser, prompt, now); err != nil {
			return err
		}
		// The answer sorts after the prompt even on coarse clocks.
		_, err := repo.CreateTurn(ctx, tx, cs.ID, repo.RoleAssistant, answer, now.Add(time.Microsecond))
		return err
	})
}

// Rename sets a new display name on a session owned by userID. A blank
// name clears it.
func (s *ChatSessionService) Rename(ctx context.Context, id uint, name, userID string) (*domain.ChatSession, error) {
	tr := otel.Tracer("services/ChatSessionService")
	ctx, span := tr.Start(ctx, "Rename",
		trace.WithAttributes(
			attribute.Int64("chat.id", int64(id)),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	cs, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	name = clipName(normalizeName(name))
	if err := repo.UpdateChatSessionName(ctx, s.DB, cs.ID, name); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatSessionNotFound
		}
		return nil, err
	}
	cs.Name = name
	return cs, nil
}

// List returns the sessions of userID, most recently active first.
func (s *ChatSessionService) List(ctx context.Context, userID string) ([]domain.ChatSession, error) {
	tr := otel.Tracer("services/ChatSessionService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return repo.ListChatSessions(ctx, s.DB, userID)
}

// Transcript returns the ordered turns and the query log of a session owned
// by userID.
func (s *ChatSessionService) Transcript(ctx context.Context, id uint, userID string) (*Transcript, error) {
	tr := otel.Tracer("services/ChatSessionService")
	ctx, span := tr.Start(ctx, "Transcript",
		trace.WithAttributes(
			attribute.Int64("chat.id", int64(id)),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	cs, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	turns, err := repo.ListTurns(ctx, s.DB, cs.ID, 0)
	if err != nil {
		return nil, err
	}
	queries, err := repo.ListSessionAIQueries(ctx, s.DB, cs.ID)
	if err != nil {
		return nil, err
	}
	return &Transcript{Session: *cs, Turns: turns, Queries: queries}, nil
}

// History returns a page of userID's answered prompts, newest first.
func (s *ChatSessionService) History(ctx context.Context, userID string, page, pageSize int) ([]domain.AIQuery, int64, error) {
	tr := otel.Tracer("services/ChatSessionService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountAIQueries(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.AIQuery{}, 0, nil
	}
	items, err := repo.ListAIQueriesPage(ctx, s.DB, userID, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

func (s *ChatSessionService) owned(ctx context.Context, id uint, userID string) (*domain.ChatSession, error) {
	cs, err := repo.GetChatSession(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatSessionNotFound
		}
		return nil, err
	}
	if cs.UserID != userID {
		return nil, ErrForbidden
	}
	return cs, nil
}

// normalizeName trims whitespace and collapses runs of it to one space.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

func clipName(s string) string {
	if utf8.RuneCountInString(s) > NameMaxLen {
		return string([]rune(s)[:NameMaxLen])
	}
	return s
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
