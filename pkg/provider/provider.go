// Package provider invokes the upstream generation backend.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/relaydeck/relaydeck/pkg/utils"
)

// Request describes one generation invocation.
type Request struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Prompt         string `json:"prompt"`
	Model          string `json:"model,omitempty"`
	Stream         bool   `json:"stream"`
}

// Result is either a synchronous text result (Text set, Body nil) or a live
// byte stream (Body set). Callers own Body and must close it.
type Result struct {
	Text        string
	Body        io.ReadCloser
	ContentType string
	Header      http.Header
}

// IsStream reports whether the backend answered with a live stream.
func (r *Result) IsStream() bool {
	return r.Body != nil
}

// Generator produces assistant responses for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// HTTPGenerator calls a remote generation backend over HTTP.
type HTTPGenerator struct {
	baseURL      string
	apiKey       string
	defaultModel string
	client       *http.Client
}

// NewHTTPGenerator builds a generator for the backend at baseURL. No client
// timeout is set: streaming responses stay open as long as the backend keeps
// producing, and cancellation travels through the request context.
func NewHTTPGenerator(baseURL, apiKey, defaultModel string) *HTTPGenerator {
	return &HTTPGenerator{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       &http.Client{},
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Model == "" {
		req.Model = g.defaultModel
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal generation request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build generation request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "call generation backend")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		utils.GetLogger().Error("backend rejected generation request",
			"status", resp.StatusCode, "conversation_id", req.ConversationID)
		return nil, errors.Errorf("backend status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if req.Stream {
		return &Result{
			Body:        resp.Body,
			ContentType: resp.Header.Get("Content-Type"),
			Header:      resp.Header.Clone(),
		}, nil
	}

	defer resp.Body.Close()
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode generation response")
	}
	return &Result{Text: out.Text}, nil
}
