package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEmbedderEmbedsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]embeddingDatum, len(req.Input))
		for i := range req.Input {
			data[i] = embeddingDatum{Index: i, Embedding: []float32{float32(i), float32(i + 1)}}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(embeddingAPIResponse{Data: data})
	}))
	defer server.Close()

	e := NewHTTPEmbedder(server.URL, "test-model")
	out, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []float32{0, 1}, out[0])
	assert.Equal(t, []float32{1, 2}, out[1])
	assert.Equal(t, []float32{2, 3}, out[2])
}

func TestHTTPEmbedderEmptyInput(t *testing.T) {
	e := NewHTTPEmbedder("http://unused", "m")
	out, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHTTPEmbedderSplitsOversizedBatch(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls++

		if len(req.Input) > 1 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "input is too large for this model"}`))
			return
		}
		data := []embeddingDatum{{Index: 0, Embedding: []float32{1}}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(embeddingAPIResponse{Data: data})
	}))
	defer server.Close()

	e := NewHTTPEmbedder(server.URL, "test-model")
	out, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Greater(t, calls, 1)
}
