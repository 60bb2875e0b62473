package openaicompat

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relayai/relay/providers/ai"
)

// TestFetchModels_FreeFirst verifies the free-then-alphabetical ordering and
// the per-token to per-million pricing conversion.
func TestFetchModels_FreeFirst(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		fmt.Fprint(writer, `{"data":[
			{"id":"vendor/paid-b","pricing":{"prompt":"0.0000025","completion":"0.00001"}},
			{"id":"vendor/free-z:free","pricing":{"prompt":"0","completion":"0"}},
			{"id":"vendor/paid-a","pricing":{"prompt":"0.000001","completion":"0.000002"}},
			{"id":"vendor/free-a","pricing":{"prompt":"0","completion":"0"}}
		]}`)
	}))
	defer server.Close()

	adapter := New(testSnapshot(server.URL), server.Client())
	models, err := adapter.FetchModels(context.Background())
	if err != nil {
		t.Fatalf("FetchModels: %v", err)
	}

	wantOrder := []string{"vendor/free-a", "vendor/free-z:free", "vendor/paid-a", "vendor/paid-b"}
	if len(models) != len(wantOrder) {
		t.Fatalf("models: got %d, want %d", len(models), len(wantOrder))
	}
	for i, want := range wantOrder {
		if models[i].ID != want {
			t.Errorf("position %d: got %q, want %q", i, models[i].ID, want)
		}
	}

	// Per-token prices scale to per-million on the descriptor.
	paid := models[3]
	if paid.InputCostPerMillion == nil || math.Abs(*paid.InputCostPerMillion-2.5) > 1e-9 {
		t.Errorf("input cost: got %v, want 2.5", paid.InputCostPerMillion)
	}
	if paid.OutputCostPerMillion == nil || math.Abs(*paid.OutputCostPerMillion-10.0) > 1e-9 {
		t.Errorf("output cost: got %v, want 10.0", paid.OutputCostPerMillion)
	}
}

// TestPresetFor verifies the vendor preset table and its fallback.
func TestPresetFor(t *testing.T) {
	tests := []struct {
		family ai.Family
		base   string
	}{
		{ai.FamilyOpenAI, "https://api.openai.com/v1"},
		{ai.FamilyOpenRouter, "https://openrouter.ai/api/v1"},
		{ai.FamilyGroq, "https://api.groq.com/openai/v1"},
		{ai.FamilyMistral, "https://api.mistral.ai/v1"},
		{ai.FamilyDeepSeek, "https://api.deepseek.com/v1"},
		{ai.FamilyCustom, "https://api.openai.com/v1"}, // fallback
	}
	for _, test := range tests {
		if got := PresetFor(test.family); got.BaseURL != test.base {
			t.Errorf("PresetFor(%s): got %q, want %q", test.family, got.BaseURL, test.base)
		}
	}
}

// TestValidateCredentials verifies that 401 reports false without an error.
func TestValidateCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(writer, `{"error":{"message":"Incorrect API key provided"}}`)
	}))
	defer server.Close()

	adapter := New(testSnapshot(server.URL), server.Client())
	valid, err := adapter.ValidateCredentials(context.Background())
	if err != nil {
		t.Fatalf("ValidateCredentials: %v", err)
	}
	if valid {
		t.Error("expected invalid credentials on 401")
	}
}
