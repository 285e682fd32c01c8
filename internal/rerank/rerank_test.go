package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"memoryd/internal/config"
	"memoryd/internal/obslog"
)

func TestClient_Rerank_OpenAIWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRerankRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := openAIRerankResponse{}
		for i, d := range req.Documents {
			score := 1.0
			if d == "b" {
				score = 0.9
			}
			resp.Results = append(resp.Results, struct {
				Index          int     `json:"index"`
				RelevanceScore float64 `json:"relevance_score"`
			}{Index: i, RelevanceScore: score})
		}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer srv.Close()

	c := NewClient(config.RerankConfig{BaseURL: srv.URL, Model: "m", WireFormat: "openai"}, 2, obslog.NopLogger{}, obslog.NoopMetrics{})
	results, err := c.Rerank(context.Background(), "q", []string{"a", "b"}, Options{})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Score < results[1].Score {
		t.Fatalf("expected descending order, got %v", results)
	}
}

func TestClient_Rerank_QwenWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req qwenRerankRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Instruct == "" {
			t.Error("expected default instruct to be populated")
		}
		scores := make([]float64, len(req.Documents))
		for i := range scores {
			scores[i] = float64(len(req.Documents) - i)
		}
		b, _ := json.Marshal(qwenRerankResponse{Scores: scores})
		w.Write(b)
	}))
	defer srv.Close()

	c := NewClient(config.RerankConfig{BaseURL: srv.URL, Model: "m", WireFormat: "qwen"}, 2, obslog.NopLogger{}, obslog.NoopMetrics{})
	results, err := c.Rerank(context.Background(), "q", []string{"a", "b", "c"}, Options{})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
}

func TestClient_Rerank_TopKTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRerankRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := openAIRerankResponse{}
		for i := range req.Documents {
			resp.Results = append(resp.Results, struct {
				Index          int     `json:"index"`
				RelevanceScore float64 `json:"relevance_score"`
			}{Index: i, RelevanceScore: float64(len(req.Documents) - i)})
		}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer srv.Close()

	c := NewClient(config.RerankConfig{BaseURL: srv.URL, Model: "m"}, 2, obslog.NopLogger{}, obslog.NoopMetrics{})
	results, err := c.Rerank(context.Background(), "q", []string{"a", "b", "c", "d"}, Options{TopK: 2})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results after TopK truncation, got %d", len(results))
	}
}

func TestClient_Rerank_FailedBatchGetsSentinelScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(config.RerankConfig{BaseURL: srv.URL, Model: "m", MaxRetries: 1}, 2, obslog.NopLogger{}, obslog.NoopMetrics{})
	results, err := c.Rerank(context.Background(), "q", []string{"a", "b"}, Options{})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	for _, r := range results {
		if r.Score != sentinelLowScore {
			t.Fatalf("expected sentinel low score, got %v", r.Score)
		}
	}
}

func TestClient_Rerank_Empty(t *testing.T) {
	c := NewClient(config.RerankConfig{BaseURL: "http://unused", Model: "m"}, 1, obslog.NopLogger{}, obslog.NoopMetrics{})
	results, err := c.Rerank(context.Background(), "q", nil, Options{})
	if err != nil || results != nil {
		t.Fatalf("expected nil, nil for empty passages, got %v, %v", results, err)
	}
}
