package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
	"github.com/paideia-labs/paideia/pkg/httpclient"
)

// OpenAIEmbedder embeds text through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	config     config.EmbedderConfig
	httpClient *httpclient.Client
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIEmbedder creates an embedder from configuration.
func NewOpenAIEmbedder(cfg config.EmbedderConfig) (*OpenAIEmbedder, error) {
	cfg.SetDefaults()
	if cfg.APIKey == "" {
		return nil, fault.New(fault.KindRequest, component, "new_embedder", "openai embedder requires an api key")
	}
	return &OpenAIEmbedder{
		config: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
		),
	}, nil
}

// Embed returns the vector for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in configured batch sizes, preserving input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	requestBody, err := json.Marshal(openAIEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, fault.Wrap(fault.KindRequest, component, "embed", "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/embeddings", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fault.Wrap(fault.KindRequest, component, "embed", "failed to create HTTP request", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fault.Wrap(fault.KindUpstream, component, "embed", "embedding call failed", err)
	}
	defer resp.Body.Close()

	var response openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, "embed", "malformed embedding response", err)
	}
	if response.Error != nil {
		return nil, fault.New(fault.KindUpstream, component, "embed", "provider error: "+response.Error.Message)
	}
	if len(response.Data) != len(texts) {
		return nil, fault.New(fault.KindUpstream, component, "embed", "embedding count does not match input count")
	}

	vectors := make([][]float32, len(texts))
	for _, item := range response.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fault.New(fault.KindUpstream, component, "embed", "embedding index out of range")
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.config.Dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

func (e *OpenAIEmbedder) Close() error {
	return nil
}
