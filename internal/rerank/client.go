// Package rerank scores query/candidate pairs with an external cross-encoder
// model served over HTTP (text-embeddings-inference style /rerank endpoint).
// Cross-encoders evaluate the pair together instead of comparing independent
// embeddings, which is slower but noticeably more precise.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Client calls a cross-encoder rerank endpoint. It issues each request once;
// retry policy against the model server belongs to the caller.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a rerank client for the given base URL, e.g.
// "http://localhost:8090". The request deadline comes from the caller's
// context, not an internal timeout.
func NewClient(baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid rerank endpoint %q", baseURL)
	}
	return &Client{
		endpoint: u.JoinPath("rerank").String(),
		http:     &http.Client{},
	}, nil
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns one relevance score per candidate, in candidate order.
// Higher means more relevant to the query.
func (c *Client) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: candidates})
	if err != nil {
		return nil, fmt.Errorf("encode rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank request: unexpected status %d", resp.StatusCode)
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	// The server returns results sorted by score; map them back onto
	// candidate positions.
	scores := make([]float64, len(candidates))
	seen := make([]bool, len(candidates))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) || seen[r.Index] {
			return nil, fmt.Errorf("rerank response: bad candidate index %d", r.Index)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank response: missing score for candidate %d", i)
		}
	}
	return scores, nil
}
