package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	return c
}

func TestScore_MapsResultsToCandidateOrder(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is alpha", req.Query)
		require.Len(t, req.Texts, 2)

		// Sorted by score, the way the model server responds.
		json.NewEncoder(w).Encode([]rerankResult{
			{Index: 1, Score: 0.9},
			{Index: 0, Score: 0.1},
		})
	})

	scores, err := c.Score(context.Background(), "what is alpha", []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.9}, scores)
}

func TestScore_EmptyCandidates(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty candidate list")
	})

	scores, err := c.Score(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestScore_ServerError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})

	_, err := c.Score(context.Background(), "q", []string{"a"})
	assert.ErrorContains(t, err, "unexpected status 503")
}

func TestScore_BadIndex(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]rerankResult{{Index: 5, Score: 0.5}})
	})

	_, err := c.Score(context.Background(), "q", []string{"a", "b"})
	assert.ErrorContains(t, err, "bad candidate index")
}

func TestScore_MissingIndex(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]rerankResult{{Index: 0, Score: 0.5}})
	})

	_, err := c.Score(context.Background(), "q", []string{"a", "b"})
	assert.ErrorContains(t, err, "missing score for candidate 1")
}

func TestScore_ContextCancelled(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]rerankResult{{Index: 0, Score: 0.5}})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Score(ctx, "q", []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	for _, bad := range []string{"", "not a url", "localhost:8090"} {
		_, err := NewClient(bad)
		assert.Error(t, err, "url %q", bad)
	}
}
