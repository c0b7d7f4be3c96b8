package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
	"github.com/paideia-labs/paideia/pkg/httpclient"
)

// OllamaProvider speaks the Ollama chat API for local models.
type OllamaProvider struct {
	config     config.LLMConfig
	httpClient *httpclient.Client
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

// NewOllamaProvider creates a provider from configuration. No API key is
// required; the host defaults to the local daemon.
func NewOllamaProvider(cfg config.LLMConfig) (*OllamaProvider, error) {
	cfg.SetDefaults()
	return &OllamaProvider{
		config:     cfg,
		httpClient: newProviderHTTPClient(cfg, nil),
	}, nil
}

func (p *OllamaProvider) ModelName() string {
	return p.config.Model
}

func (p *OllamaProvider) Close() error {
	return nil
}

// Complete performs a blocking chat call.
func (p *OllamaProvider) Complete(ctx context.Context, req Request) (*CompletionResult, error) {
	httpReq, err := p.newHTTPRequest(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		drainBody(resp)
		return nil, classifyHTTPFailure("complete", resp, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, "complete", "failed to read provider response", err)
	}

	var response ollamaResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, "complete", "malformed provider response", err)
	}
	if response.Error != "" {
		return nil, fault.New(fault.KindUpstream, component, "complete", "provider error: "+response.Error)
	}

	return &CompletionResult{
		Text:         response.Message.Content,
		Model:        req.Model,
		InputTokens:  response.PromptEvalCount,
		OutputTokens: response.EvalCount,
	}, nil
}

// CompleteStream performs a streaming chat call. Ollama streams NDJSON, one
// object per line, with done=true on the last.
func (p *OllamaProvider) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	outputCh := make(chan StreamChunk, 64)

	go func() {
		defer close(outputCh)
		if err := p.streamRequest(ctx, p.buildRequest(req, true), outputCh); err != nil {
			outputCh <- StreamChunk{Type: ChunkTypeError, Err: err}
		}
	}()

	return outputCh, nil
}

func (p *OllamaProvider) buildRequest(req Request, stream bool) ollamaRequest {
	messages := make([]ollamaMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: req.User})

	out := ollamaRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	if req.JSONMode {
		out.Format = "json"
	}
	return out
}

func (p *OllamaProvider) newHTTPRequest(ctx context.Context, request ollamaRequest) (*http.Request, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fault.Wrap(fault.KindRequest, component, "complete", "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/api/chat", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fault.Wrap(fault.KindRequest, component, "complete", "failed to create HTTP request", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *OllamaProvider) streamRequest(ctx context.Context, request ollamaRequest, outputCh chan<- StreamChunk) error {
	req, err := p.newHTTPRequest(ctx, request)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		drainBody(resp)
		return classifyHTTPFailure("complete_stream", resp, err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return fault.New(fault.KindUpstream, component, "complete_stream", "provider error: "+chunk.Error)
		}
		if chunk.Message.Content != "" {
			outputCh <- StreamChunk{Type: ChunkTypeText, Text: chunk.Message.Content}
		}
		if chunk.Done {
			outputCh <- StreamChunk{Type: ChunkTypeDone, Tokens: chunk.EvalCount}
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return classifyHTTPFailure("complete_stream", nil, err)
	}

	outputCh <- StreamChunk{Type: ChunkTypeDone}
	return nil
}
