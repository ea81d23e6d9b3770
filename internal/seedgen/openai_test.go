package seedgen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func writeChunk(w http.ResponseWriter, content string) {
	payload, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index": 0,
			"delta": map[string]any{"content": content},
		}},
	})
	_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
}

func TestOpenAIProviderStreamsDeltas(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		writeChunk(w, "")
		writeChunk(w, "SELECT ")
		writeChunk(w, "1;")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	provider := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL})
	var got []string
	err := provider.StreamText(context.Background(), CompletionRequest{
		APIKey:       "sk-test",
		Model:        "gpt-4o-mini",
		SystemPrompt: "sys",
		UserPrompt:   "user",
	}, func(text string) error {
		got = append(got, text)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamText() error = %v", err)
	}
	if strings.Join(got, "|") != "SELECT |1;" {
		t.Fatalf("fragments = %#v", got)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" || gotBody["stream"] != true {
		t.Fatalf("request body = %#v", gotBody)
	}
	messages, ok := gotBody["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("messages = %#v", gotBody["messages"])
	}
	system, _ := messages[0].(map[string]any)
	user, _ := messages[1].(map[string]any)
	if system["role"] != "system" || system["content"] != "sys" {
		t.Fatalf("system message = %#v", system)
	}
	if user["role"] != "user" || user["content"] != "user" {
		t.Fatalf("user message = %#v", user)
	}
}

func TestOpenAIProviderDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream down"}}`))
	}))
	defer srv.Close()

	provider := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL})
	err := provider.StreamText(context.Background(), CompletionRequest{APIKey: "k", Model: "gpt-4o"}, func(string) error { return nil })
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestOpenAIProviderMidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeChunk(w, "SELECT ")
		_, _ = fmt.Fprint(w, "data: {\"error\":{\"message\":\"overloaded\"}}\n\n")
	}))
	defer srv.Close()

	provider := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL})
	var got []string
	err := provider.StreamText(context.Background(), CompletionRequest{APIKey: "k", Model: "gpt-4o"}, func(text string) error {
		got = append(got, text)
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("StreamText() error = %v", err)
	}
	if len(got) != 1 || got[0] != "SELECT " {
		t.Fatalf("fragments before error = %#v", got)
	}
}

func TestOpenAIProviderRequiresAPIKey(t *testing.T) {
	err := NewOpenAIProvider(OpenAIConfig{}).StreamText(context.Background(), CompletionRequest{}, func(string) error { return nil })
	if err == nil {
		t.Fatalf("expected error")
	}
}
