// Package services – AssistantService
//
// This file implements AssistantService, which runs one request/response
// cycle of the HR assistant:
//
//  1. structure questions are answered locally from the unit outline;
//  2. prompts above the token ceiling get a fixed reply;
//  3. system instruction + retained history + prompt go to the completer;
//  4. on success one transaction resolves the chat session, writes the
//     transcript turns and the query log entry, and stamps the session;
//  5. the exchange is appended to the transient state.
//
// The transient state is passed in and returned explicitly; callers save it.
// A failed completion leaves no rows behind.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/hr-backoffice/internal/domain"
	"github.com/tbourn/hr-backoffice/internal/intent"
	"github.com/tbourn/hr-backoffice/internal/llm"
	"github.com/tbourn/hr-backoffice/internal/observability"
	"github.com/tbourn/hr-backoffice/internal/repo"
	"github.com/tbourn/hr-backoffice/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// SystemPrompt opens every completion request.
	SystemPrompt = "You are the company's HR assistant. Answer briefly and to the point."

	// TooLargeReply answers prompts over the token ceiling.
	TooLargeReply = "Your message is too large. Please shorten the text."

	// EmptyStructureReply answers a structure question when no active unit exists.
	EmptyStructureReply = "The organizational structure is empty."

	// DefaultMaxInputTokens is used when MaxInputTokens is not set.
	DefaultMaxInputTokens = 1000
)

// Result kinds reported by Ask.
const (
	KindStructure = "structure"
	KindTooLarge  = "too_large"
	KindAnswer    = "answer"
)

// Outliner renders the active organizational structure.
type Outliner interface {
	Outline(ctx context.Context) (string, error)
}

// AssistantService answers chat prompts.
type AssistantService struct {
	DB         *gorm.DB
	Sessions   *ChatSessionService
	Units      Outliner
	Classifier intent.Classifier
	Tokens     llm.TokenCounter
	Completer  llm.Completer

	// MaxInputTokens is the prompt ceiling; it also caps the completion length.
	MaxInputTokens int
	// HistoryPairs bounds the transient history (0 keeps everything).
	HistoryPairs int
	// MaxPromptRunes rejects longer prompts with ErrTooLong (0 disables).
	MaxPromptRunes int
}

// AskInput is one chat request.
type AskInput struct {
	UserID      string
	Prompt      string
	SessionName string
	State       session.State
}

// AskResult is the answer and the transient state to store for the caller.
type AskResult struct {
	Answer        string
	State         session.State
	Kind          string
	ChatSessionID uint

	// QueryID is the logged AIQuery row; empty unless Kind is KindAnswer.
	QueryID string
}

func (s *AssistantService) maxInputTokens() int {
	if s.MaxInputTokens <= 0 {
		return DefaultMaxInputTokens
	}
	return s.MaxInputTokens
}

// Ask answers prompt for the user, see the package comment for the steps.
func (s *AssistantService) Ask(ctx context.Context, in AskInput) (*AskResult, error) {
	tr := otel.Tracer("services/AssistantService")
	ctx, span := tr.Start(ctx, "Ask",
		trace.WithAttributes(attribute.String("user.id", in.UserID)),
	)
	defer span.End()

	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(prompt) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}

	if s.Classifier != nil && s.Classifier.IsStructureQuery(prompt) {
		outline, err := s.Units.Outline(ctx)
		if err != nil {
			return nil, err
		}
		if outline == "" {
			outline = EmptyStructureReply
		}
		span.SetAttributes(attribute.String("assistant.kind", KindStructure))
		observability.AssistantRequest(observability.OutcomeStructure)
		return &AskResult{Answer: strings.TrimRight(outline, "\n"), State: in.State, Kind: KindStructure}, nil
	}

	tokens := s.Tokens.Count(prompt)
	span.SetAttributes(attribute.Int("prompt.tokens", tokens))
	if tokens > s.maxInputTokens() {
		observability.AssistantRequest(observability.OutcomeTooLarge)
		return &AskResult{Answer: TooLargeReply, State: in.State, Kind: KindTooLarge}, nil
	}

	state := in.State.Clone()
	if state.ChatSessionID == "" {
		state.ChatSessionID = uuid.NewString()
	}

	messages := make([]llm.Message, 0, len(state.History)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt})
	for _, t := range state.History {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	start := time.Now()
	answer, err := s.Completer.Complete(ctx, messages)
	observability.ObserveCompletion(time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		observability.AssistantRequest(observability.OutcomeFailed)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	// Nothing is written before the completion succeeds; the session row,
	// both turns, the query log entry and the activity stamp commit together.
	var (
		cs *domain.ChatSession
		q  *domain.AIQuery
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if cs, err = s.Sessions.GetOrCreateIn(ctx, tx, state.ChatSessionID, in.UserID, in.SessionName); err != nil {
			return err
		}
		if err := s.Sessions.AppendExchange(ctx, tx, cs, prompt, answer); err != nil {
			return err
		}
		if q, err = repo.CreateAIQuery(ctx, tx, in.UserID, prompt, answer, &cs.ID); err != nil {
			return err
		}
		return repo.TouchChatSession(ctx, tx, cs.ID)
	})
	if err != nil {
		return nil, err
	}

	observability.AssistantRequest(observability.OutcomeAnswered)
	return &AskResult{
		Answer:        answer,
		State:         state.AppendExchange(prompt, answer, s.HistoryPairs),
		Kind:          KindAnswer,
		ChatSessionID: cs.ID,
		QueryID:       q.ID,
	}, nil
}

// Reset discards the transient conversation. With newSession it starts a
// fresh ChatSession right away and returns its row; persisted sessions and
// queries are never touched.
func (s *AssistantService) Reset(ctx context.Context, userID string, state session.State, newSession bool, name string) (session.State, *domain.ChatSession, error) {
	tr := otel.Tracer("services/AssistantService")
	ctx, span := tr.Start(ctx, "Reset",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Bool("chat.had_session", state.ChatSessionID != ""),
			attribute.Bool("chat.new_session", newSession),
		),
	)
	defer span.End()

	if !newSession {
		return session.State{}, nil, nil
	}
	fresh := session.State{ChatSessionID: uuid.NewString()}
	cs, err := s.Sessions.GetOrCreate(ctx, fresh.ChatSessionID, userID, name)
	if err != nil {
		return session.State{}, nil, err
	}
	return fresh, cs, nil
}
