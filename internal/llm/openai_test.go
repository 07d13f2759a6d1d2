package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
)

// fakeCompletions serves /v1/chat/completions with handler.
func fakeCompletions(t *testing.T, handler func(w http.ResponseWriter, req openai.ChatCompletionRequest)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		handler(w, req)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func reply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID:      "cmpl-1",
		Object:  "chat.completion",
		Choices: []openai.ChatCompletionChoice{{Index: 0, Message: openai.ChatCompletionMessage{Role: RoleAssistant, Content: content}}},
	})
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{}); err == nil {
		t.Fatalf("expected an error without an API key")
	}

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	if c.Model() != DefaultModel {
		t.Fatalf("Model = %q", c.Model())
	}
}

func TestComplete_SendsSamplingAndMessages(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := fakeCompletions(t, func(w http.ResponseWriter, req openai.ChatCompletionRequest) {
		got = req
		reply(w, "Vacation requests go through your manager.")
	})

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1/", Model: "gpt-4o-mini", MaxCompletionTokens: 1000})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}

	out, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "How do I request vacation?"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "Vacation requests go through your manager." {
		t.Fatalf("reply = %q", out)
	}

	if got.Model != "gpt-4o-mini" || got.N != 1 || got.MaxCompletionTokens != 1000 {
		t.Fatalf("unexpected request %+v", got)
	}
	if math.Abs(float64(got.Temperature)-0.7) > 1e-6 || math.Abs(float64(got.TopP)-1.0) > 1e-6 {
		t.Fatalf("sampling = %v/%v", got.Temperature, got.TopP)
	}
	if got.PresencePenalty != 0 || got.FrequencyPenalty != 0 {
		t.Fatalf("penalties must be zero: %v/%v", got.PresencePenalty, got.FrequencyPenalty)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != RoleSystem || got.Messages[1].Content != "How do I request vacation?" {
		t.Fatalf("messages = %+v", got.Messages)
	}
}

func TestComplete_APIError(t *testing.T) {
	srv := fakeCompletions(t, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})
	c, _ := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})

	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *openai.APIError, got %v", err)
	}
	if apiErr.HTTPStatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", apiErr.HTTPStatusCode)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := fakeCompletions(t, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	})
	c, _ := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})

	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrNoChoices) {
		t.Fatalf("expected ErrNoChoices, got %v", err)
	}
}

func TestComplete_Timeout(t *testing.T) {
	srv := fakeCompletions(t, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		time.Sleep(200 * time.Millisecond)
		reply(w, "late")
	})
	c, _ := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Timeout: 20 * time.Millisecond})

	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCompleterFunc(t *testing.T) {
	f := CompleterFunc(func(_ context.Context, m []Message) (string, error) { return m[0].Content, nil })
	out, err := f.Complete(context.Background(), []Message{{Role: RoleUser, Content: "echo"}})
	if err != nil || out != "echo" {
		t.Fatalf("Complete = %q, %v", out, err)
	}
}
