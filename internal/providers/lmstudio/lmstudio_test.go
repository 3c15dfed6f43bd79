package lmstudio

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "mindstudio/local/internal/errors"
	"mindstudio/local/internal/model"
	"mindstudio/local/internal/providers"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/v1")
}

func drain(ch <-chan providers.ChatChunk) (string, providers.ChatChunk) {
	var content strings.Builder
	var last providers.ChatChunk
	for c := range ch {
		content.WriteString(c.Content)
		last = c
	}
	return content.String(), last
}

func TestChatStreamsSSE(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hello", ", ", "world"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"qwen\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"qwen\",\"choices\":[],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":3,\"total_tokens\":6}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := p.Chat(context.Background(), "qwen", []model.ChatMessage{{Role: "user", Content: "hi"}}, providers.ChatOptions{})
	if err != nil {
		t.Fatal(err)
	}
	content, last := drain(ch)
	if content != "Hello, world" {
		t.Errorf("content = %q, want Hello, world", content)
	}
	if !last.Done || last.Err != nil {
		t.Fatalf("last = %+v, want clean Done", last)
	}
	if last.Usage == nil || last.Usage.CompletionTokens != 3 {
		t.Errorf("usage = %+v, want 3 completion tokens", last.Usage)
	}
}

func TestChatModelNotFound(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"model not loaded","type":"invalid_request_error"}}`))
	})

	ch, err := p.Chat(context.Background(), "ghost", []model.ChatMessage{{Role: "user", Content: "hi"}}, providers.ChatOptions{})
	if err != nil {
		t.Fatal(err)
	}
	_, last := drain(ch)
	if !last.Done || !apperrors.Is(last.Err, apperrors.NotFound) {
		t.Errorf("last = %+v, want not-found error", last)
	}
}

func TestDiscoverModelsSkipsEmbeddings(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"id":"qwen2.5-7b-instruct","object":"model","created":0,"owned_by":"organization_owner"},
			{"id":"text-embedding-nomic-embed-text-v1.5","object":"model","created":0,"owned_by":"organization_owner"}
		]}`))
	})

	got := p.DiscoverModels(context.Background())
	if len(got) != 1 || got[0].Name != "qwen2.5-7b-instruct" || got[0].Provider != Name {
		t.Errorf("DiscoverModels() = %+v, want only the chat model", got)
	}
}

func TestConvertMessagesRoles(t *testing.T) {
	got := convertMessages([]model.ChatMessage{
		{Role: "system", Content: "s"},
		{Role: "assistant", Content: "a"},
		{Role: "user", Content: "u"},
		{Role: "tool", Content: "t"},
	})
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[0].OfSystem == nil || got[1].OfAssistant == nil || got[2].OfUser == nil || got[3].OfUser == nil {
		t.Errorf("roles not mapped: %+v", got)
	}
}
