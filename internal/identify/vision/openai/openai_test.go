package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hearthkeep/hearth/internal/identify/vision/models"
)

func TestIdentifyParsesChattyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []struct {
					Type string `json:"type"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Model != "gpt-4o" {
			t.Errorf("model = %q", req.Model)
		}

		resp := map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": `Based on the photo, here are my guesses:
[{"make": "Carrier", "model": "24ACC636", "type": "air conditioner", "confidence": 1.4}]
Let me know if you need more detail.`,
				},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(models.Config{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o"})
	candidates, err := c.Identify(context.Background(), models.Input{Query: "outdoor ac unit"})
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].Make != "Carrier" || candidates[0].Model != "24ACC636" {
		t.Errorf("candidate = %+v", candidates[0])
	}
	if candidates[0].Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", candidates[0].Confidence)
	}
}

func TestIdentifyProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(models.Config{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o"})
	_, err := c.Identify(context.Background(), models.Input{Query: "outdoor ac unit"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want status 429 surfaced", err)
	}
}
