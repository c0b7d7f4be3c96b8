package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
	"github.com/paideia-labs/paideia/pkg/httpclient"
)

const component = "rag"

// Ollama's llama runner crashes on concurrent embedding requests, so all
// calls through this embedder are serialized.
var ollamaEmbedMu sync.Mutex

// OllamaEmbedder embeds text through a local Ollama daemon.
type OllamaEmbedder struct {
	config     config.EmbedderConfig
	httpClient *httpclient.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaEmbedder creates an embedder from configuration.
func NewOllamaEmbedder(cfg config.EmbedderConfig) (*OllamaEmbedder, error) {
	cfg.SetDefaults()
	return &OllamaEmbedder{
		config: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
		),
	}, nil
}

// Embed returns the vector for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	requestBody, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Prompt: text})
	if err != nil {
		return nil, fault.Wrap(fault.KindRequest, component, "embed", "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embeddings", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fault.Wrap(fault.KindRequest, component, "embed", "failed to create HTTP request", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fault.Wrap(fault.KindUpstream, component, "embed", "embedding call failed", err)
	}
	defer resp.Body.Close()

	var response ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, "embed", "malformed embedding response", err)
	}
	if len(response.Embedding) == 0 {
		return nil, fault.New(fault.KindUpstream, component, "embed", "embedding model returned an empty vector")
	}
	return response.Embedding, nil
}

// EmbedBatch embeds texts one at a time; the Ollama embeddings endpoint has
// no batch form.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vector, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

func (e *OllamaEmbedder) Dimension() int {
	return e.config.Dimension
}

func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

func (e *OllamaEmbedder) Close() error {
	return nil
}
