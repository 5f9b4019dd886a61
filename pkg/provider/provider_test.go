package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPGeneratorSyncResult(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization header = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "pong"})
	}))
	defer srv.Close()

	gen := NewHTTPGenerator(srv.URL+"/", "test-key", "default-model")
	res, err := gen.Generate(context.Background(), Request{Prompt: "ping"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.IsStream() {
		t.Fatal("sync request produced a stream result")
	}
	if res.Text != "pong" {
		t.Fatalf("text = %q", res.Text)
	}
	if got.Model != "default-model" {
		t.Fatalf("default model not applied, got %q", got.Model)
	}
}

func TestHTTPGeneratorStreamResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Backend-Trace", "abc")
		io.WriteString(w, "data: {\"type\":\"text-delta\",\"delta\":\"hi\"}\n\n")
	}))
	defer srv.Close()

	gen := NewHTTPGenerator(srv.URL, "", "")
	res, err := gen.Generate(context.Background(), Request{Prompt: "ping", Stream: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.IsStream() {
		t.Fatal("stream request produced a sync result")
	}
	defer res.Body.Close()
	if res.ContentType != "text/event-stream" {
		t.Fatalf("content type = %q", res.ContentType)
	}
	if res.Header.Get("X-Backend-Trace") != "abc" {
		t.Fatal("backend headers not carried through")
	}
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "text-delta") {
		t.Fatalf("body = %q", body)
	}
}

func TestHTTPGeneratorBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gen := NewHTTPGenerator(srv.URL, "", "")
	_, err := gen.Generate(context.Background(), Request{Prompt: "ping"})
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("error lacks backend detail: %v", err)
	}
}
