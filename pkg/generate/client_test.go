package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func completionHandler(t *testing.T, reply string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("got path %q, want /chat/completions", r.URL.Path)
		}
		var payload struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("bad request payload: %v", err)
		}
		if payload.Model == "" {
			t.Error("request missing model")
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"model": payload.Model,
			"choices": []map[string]interface{}{{
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}
}

func TestClientChat(t *testing.T) {
	srv := httptest.NewServer(completionHandler(t, "hello there"))
	defer srv.Close()

	c, err := NewClient(WithBaseURL(srv.URL), WithModel("test-model"), WithAPIKey("key"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	resp, err := c.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Text != "hello there" {
		t.Errorf("got text %q, want %q", resp.Text, "hello there")
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("got %d total tokens, want 15", resp.Usage.TotalTokens)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("got finish reason %q, want stop", resp.FinishReason)
	}
}

func TestClientChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","code":"rate_limit"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(WithBaseURL(srv.URL), WithModel("test-model"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = c.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want *APIError", err)
	}
	if !apiErr.IsRateLimited() {
		t.Errorf("got status %d, want 429", apiErr.StatusCode)
	}
	if apiErr.Message != "rate limited" {
		t.Errorf("got message %q, want %q", apiErr.Message, "rate limited")
	}
}

func TestClientChatSingleAttempt(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(WithBaseURL(srv.URL), WithModel("test-model"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = c.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("Chat succeeded against a failing server")
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("server saw %d requests, want exactly 1", n)
	}
}

func TestClientChatHonorsContext(t *testing.T) {
	srv := httptest.NewServer(completionHandler(t, "late"))
	defer srv.Close()

	c, err := NewClient(WithBaseURL(srv.URL), WithModel("test-model"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Chat(ctx, &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}); err == nil {
		t.Fatal("Chat ignored cancelled context")
	}
}

func TestNewClientValidates(t *testing.T) {
	if _, err := NewClient(WithBaseURL("")); !errors.Is(err, ErrNoBaseURL) {
		t.Errorf("got %v, want ErrNoBaseURL", err)
	}
	if _, err := NewClient(WithModel("")); !errors.Is(err, ErrNoModel) {
		t.Errorf("got %v, want ErrNoModel", err)
	}
}
