package agents

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, srv
}

func TestRunDiscovery_Success(t *testing.T) {
	var gotPath string
	var gotBody DiscoveryRequest

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(DiscoveryResult{
			Success: true,
			Message: "Found 1 opportunity",
			Bids: []DiscoveredBid{{
				Title:          "HVAC Replacement for Building 42",
				Agency:         "State University of California",
				Portal:         "SAM.gov",
				SourceURL:      "https://sam.gov/opp/123",
				RelevanceScore: 0.92,
			}},
		})
	}))

	result, err := client.RunDiscovery(context.Background(), DiscoveryRequest{
		UserID:   "user-1",
		Keywords: "HVAC",
	})
	if err != nil {
		t.Fatalf("RunDiscovery failed: %v", err)
	}

	if gotPath != "/api/run_discovery_agent" {
		t.Fatalf("posted to %q, want /api/run_discovery_agent", gotPath)
	}
	if gotBody.UserID != "user-1" || gotBody.Keywords != "HVAC" {
		t.Fatalf("request body missing identity or keywords: %+v", gotBody)
	}
	if !result.Success || len(result.Bids) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Bids[0].RelevanceScore != 0.92 {
		t.Fatalf("relevance score lost in transit: %v", result.Bids[0].RelevanceScore)
	}
}

func TestRun_Non2xxIsDownstreamError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent exploded", http.StatusInternalServerError)
	}))

	_, err := client.RunAnalysis(context.Background(), AnalysisRequest{UserID: "u", BidID: "b"})
	if err == nil {
		t.Fatal("expected error for 500 reply")
	}

	var dsErr *DownstreamError
	if !errors.As(err, &dsErr) {
		t.Fatalf("expected DownstreamError, got %T: %v", err, err)
	}
	if dsErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", dsErr.StatusCode)
	}
	if dsErr.Capability != CapAnalysis {
		t.Fatalf("capability = %q, want %q", dsErr.Capability, CapAnalysis)
	}
}

func TestRun_UnreachableBackend(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.RunSubmit(context.Background(), SubmitRequest{UserID: "u", BidID: "b", SubmissionMethod: "portal"})
	var dsErr *DownstreamError
	if !errors.As(err, &dsErr) {
		t.Fatalf("expected DownstreamError for unreachable backend, got %v", err)
	}
	if dsErr.StatusCode != 0 {
		t.Fatalf("transport failure should carry no status code, got %d", dsErr.StatusCode)
	}
}

func TestRun_TimeoutIsDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	client := &Client{
		BaseURL: srv.URL,
		Registry: &Registry{Capabilities: []CapabilityConfig{
			{ID: CapAnalysis, Path: "/api/run_analysis_agent", TimeoutSeconds: 1},
		}},
		http: &http.Client{},
	}

	_, err := client.RunAnalysis(context.Background(), AnalysisRequest{UserID: "u", BidID: "b"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestRun_InvalidJSONReply(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))

	_, err := client.RunPrefill(context.Background(), PrefillRequest{UserID: "u", BidID: "b"})
	var dsErr *DownstreamError
	if !errors.As(err, &dsErr) {
		t.Fatalf("expected DownstreamError for invalid JSON, got %v", err)
	}
}
