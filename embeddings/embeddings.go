// Package embeddings turns chunk text into dense vectors by calling an
// OpenAI-compatible embeddings endpoint.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultBatchSizeLimit = 64
	maxTokensPerBatch     = 8000
	maxCharsPerToken      = 4
	minBatchSize          = 1
)

// Embedder converts texts into embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint with
// adaptive batching: batches are sized to stay under a token estimate, and
// a batch that the server rejects as oversized is retried after splitting
// in half.
type HTTPEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewHTTPEmbedder builds an HTTPEmbedder targeting baseURL with the given
// model name.
func NewHTTPEmbedder(baseURL, model string) *HTTPEmbedder {
	return &HTTPEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 180 * time.Second},
	}
}

// Embed embeds all texts, batching adaptively and returning one vector per
// input text in the same order.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	all := make([][]float32, len(texts))
	batches := createAdaptiveBatches(texts)

	log.Debug().Int("texts", len(texts)).Int("batches", len(batches)).Msg("embedding texts")

	for i, batch := range batches {
		embeddings, err := e.processBatchWithRetry(ctx, batch, i)
		if err != nil {
			return nil, fmt.Errorf("failed to process batch %d: %w", i, err)
		}
		for j, emb := range embeddings {
			idx := batch.startIndex + j
			if idx < len(all) {
				all[idx] = emb
			}
		}
	}

	for idx, emb := range all {
		if len(emb) == 0 {
			return nil, fmt.Errorf("embedding for text at index %d was not populated", idx)
		}
	}
	return all, nil
}

type batch struct {
	texts      []string
	startIndex int
	totalChars int
}

// createAdaptiveBatches packs texts into batches bounded by a character
// count standing in for a token estimate.
func createAdaptiveBatches(texts []string) []batch {
	var batches []batch

	i := 0
	for i < len(texts) {
		b := batch{startIndex: i}
		currentChars := 0
		n := 0

		for i+n < len(texts) && n < defaultBatchSizeLimit {
			textChars := len(texts[i+n])
			estimatedTokens := (currentChars + textChars) / maxCharsPerToken

			if estimatedTokens > maxTokensPerBatch && n > 0 {
				break
			}
			if textChars/maxCharsPerToken > maxTokensPerBatch {
				if n == 0 {
					b.texts = append(b.texts, texts[i+n])
					b.totalChars = textChars
					n = 1
				}
				break
			}

			b.texts = append(b.texts, texts[i+n])
			currentChars += textChars
			n++
		}

		b.totalChars = currentChars
		batches = append(batches, b)
		i += n
	}
	return batches
}

// processBatchWithRetry sends a batch, splitting it in half and retrying
// when the server reports the batch as oversized.
func (e *HTTPEmbedder) processBatchWithRetry(ctx context.Context, b batch, batchIndex int) ([][]float32, error) {
	embeddings, err := e.sendRequest(ctx, b.texts)
	if err == nil {
		return embeddings, nil
	}
	if !isOversizedBatchError(err) {
		return nil, err
	}

	if len(b.texts) <= minBatchSize {
		return nil, fmt.Errorf("single oversized text in batch %d cannot be split further: %w", batchIndex, err)
	}

	log.Warn().Int("batch", batchIndex).Int("texts", len(b.texts)).Msg("batch rejected as oversized, splitting")

	mid := len(b.texts) / 2
	first := batch{texts: b.texts[:mid], startIndex: b.startIndex}
	second := batch{texts: b.texts[mid:], startIndex: b.startIndex + mid}

	firstEmb, err := e.processBatchWithRetry(ctx, first, batchIndex)
	if err != nil {
		return nil, err
	}
	secondEmb, err := e.processBatchWithRetry(ctx, second, batchIndex)
	if err != nil {
		return nil, err
	}
	return append(firstEmb, secondEmb...), nil
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingDatum struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingAPIResponse struct {
	Data []embeddingDatum `json:"data"`
}

func (e *HTTPEmbedder) sendRequest(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embeddingRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API request failed with status %s: %s", resp.Status, string(body))
	}

	var parsed embeddingAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding API response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("mismatch in embeddings returned (%d) vs texts sent (%d)", len(parsed.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding data index out of bounds: %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

var oversizedIndicators = []string{
	"too large",
	"input is too large",
	"increase the physical batch size",
	"context length exceeded",
	"maximum context length",
	"token limit",
	"input size",
}

func isOversizedBatchError(err error) bool {
	lower := strings.ToLower(err.Error())
	for _, indicator := range oversizedIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
