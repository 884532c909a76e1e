package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/v2/option"
)

func fakeCompletion(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "Your code is 123456") {
			t.Errorf("prompt does not carry the message: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": %q}}]
		}`, answer)
	}))
}

func TestClassifyService(t *testing.T) {
	srv := fakeCompletion(t, " discord. ")
	defer srv.Close()

	c := NewOpenAIClient("test", []string{"Telegram", "Discord"}, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	got, err := c.ClassifyService(context.Background(), "Your code is 123456")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != "Discord" {
		t.Errorf("expected Discord, got %q", got)
	}
}

func TestClassifyServiceOutsideList(t *testing.T) {
	srv := fakeCompletion(t, "Some Bank")
	defer srv.Close()

	c := NewOpenAIClient("test", []string{"Telegram"}, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	got, err := c.ClassifyService(context.Background(), "Your code is 123456")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty answer, got %q", got)
	}
}
