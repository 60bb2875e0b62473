package openaicompat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/relayai/relay/providers/ai"
)

func writeData(writer http.ResponseWriter, data string) {
	fmt.Fprintf(writer, "data: %s\n\n", data)
	if flusher, ok := writer.(http.Flusher); ok {
		flusher.Flush()
	}
}

func testSnapshot(baseURL string) *ai.Snapshot {
	return &ai.Snapshot{
		ProviderID: "openai",
		Family:     ai.FamilyOpenAI,
		BaseURL:    baseURL,
		AuthMethod: ai.AuthAPIKey,
		APIKey:     "sk-test",
	}
}

// TestSendMessage_DeltaStreaming verifies delta assembly, the trailing usage
// chunk, and [DONE] handling.
func TestSendMessage_DeltaStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization: got %q", got)
		}
		if request.URL.Path != "/chat/completions" {
			t.Errorf("path: got %q", request.URL.Path)
		}

		writer.Header().Set("Content-Type", "text/event-stream")
		writer.WriteHeader(http.StatusOK)
		writeData(writer, `{"id":"cmpl-1","model":"gpt-4o","choices":[{"delta":{"content":"Hel"},"finish_reason":null}]}`)
		writeData(writer, `{"id":"cmpl-1","model":"gpt-4o","choices":[{"delta":{"content":"lo"},"finish_reason":null}]}`)
		writeData(writer, `{"id":"cmpl-1","model":"gpt-4o","choices":[{"delta":{},"finish_reason":"stop"}]}`)
		writeData(writer, `{"id":"cmpl-1","model":"gpt-4o","choices":[],"usage":{"prompt_tokens":9,"completion_tokens":2}}`)
		writeData(writer, `[DONE]`)
	}))
	defer server.Close()

	adapter := New(testSnapshot(server.URL), server.Client())
	stream, err := adapter.SendMessage(context.Background(), ai.ChatRequest{
		Model:    "gpt-4o",
		Messages: []ai.ChatMessage{{Role: ai.RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	result, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if result.Content != "Hello" {
		t.Errorf("content: got %q", result.Content)
	}
	if result.Model != "gpt-4o" {
		t.Errorf("model: got %q", result.Model)
	}
	if result.InputTokens != 9 || result.OutputTokens != 2 {
		t.Errorf("tokens: got in=%d out=%d", result.InputTokens, result.OutputTokens)
	}
	if result.FinishReason != "stop" {
		t.Errorf("finish reason: got %q", result.FinishReason)
	}
}

// TestSendMessage_EOFWithoutDone verifies that a server closing the
// connection without [DONE] still produces a done event: compatible servers
// in the wild skip the sentinel.
func TestSendMessage_EOFWithoutDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/event-stream")
		writer.WriteHeader(http.StatusOK)
		writeData(writer, `{"model":"gpt-4o","choices":[{"delta":{"content":"hi"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	adapter := New(testSnapshot(server.URL), server.Client())
	stream, err := adapter.SendMessage(context.Background(), ai.ChatRequest{
		Model:    "gpt-4o",
		Messages: []ai.ChatMessage{{Role: ai.RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	result, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if result.Content != "hi" || result.FinishReason != "stop" {
		t.Errorf("result: got %+v", result)
	}
}

// TestSendMessage_ErrorChunk verifies that an in-band error object terminates
// the stream with a provider error event.
func TestSendMessage_ErrorChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/event-stream")
		writer.WriteHeader(http.StatusOK)
		writeData(writer, `{"model":"gpt-4o","choices":[{"delta":{"content":"par"},"finish_reason":null}]}`)
		writeData(writer, `{"error":{"message":"The server had an error","type":"server_error"}}`)
	}))
	defer server.Close()

	adapter := New(testSnapshot(server.URL), server.Client())
	stream, err := adapter.SendMessage(context.Background(), ai.ChatRequest{
		Model:    "gpt-4o",
		Messages: []ai.ChatMessage{{Role: ai.RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	result, err := stream.Collect()
	if err == nil {
		t.Fatal("expected an error from the error chunk")
	}
	if ai.KindOf(err) != ai.ErrProvider {
		t.Errorf("error kind: got %q, want %q", ai.KindOf(err), ai.ErrProvider)
	}
	if result.Content != "par" {
		t.Errorf("partial content: got %q", result.Content)
	}
}

// TestSendMessage_RequestsUsage verifies that streaming requests opt into the
// trailing usage chunk.
func TestSendMessage_RequestsUsage(t *testing.T) {
	var requestBody string
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		raw, _ := io.ReadAll(request.Body)
		requestBody = string(raw)

		writer.Header().Set("Content-Type", "text/event-stream")
		writer.WriteHeader(http.StatusOK)
		writeData(writer, `[DONE]`)
	}))
	defer server.Close()

	adapter := New(testSnapshot(server.URL), server.Client())
	stream, err := adapter.SendMessage(context.Background(), ai.ChatRequest{
		Model:    "gpt-4o",
		Messages: []ai.ChatMessage{{Role: ai.RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := stream.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if !strings.Contains(requestBody, `"include_usage":true`) {
		t.Errorf("request body missing stream_options.include_usage: %s", requestBody)
	}
	if !strings.Contains(requestBody, `"stream":true`) {
		t.Errorf("request body missing stream flag: %s", requestBody)
	}
}

// TestSendMessage_NonStreaming verifies the buffered path.
func TestSendMessage_NonStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		fmt.Fprint(writer, `{
			"id": "cmpl-1",
			"model": "gpt-4o",
			"choices": [{"message":{"content":"Buffered"},"finish_reason":"stop"}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3}
		}`)
	}))
	defer server.Close()

	streaming := false
	adapter := New(testSnapshot(server.URL), server.Client())
	stream, err := adapter.SendMessage(context.Background(), ai.ChatRequest{
		Model:    "gpt-4o",
		Messages: []ai.ChatMessage{{Role: ai.RoleUser, Content: "Hi"}},
		Options:  ai.RequestOptions{Stream: &streaming},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	result, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if result.Content != "Buffered" || result.InputTokens != 7 || result.OutputTokens != 3 {
		t.Errorf("result: got %+v", result)
	}
}
