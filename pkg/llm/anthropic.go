package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
	"github.com/paideia-labs/paideia/pkg/httpclient"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider speaks the Anthropic messages API. JSON mode has no
// native switch here; the recovery ladder in the gateway handles prose
// around the object.
type AnthropicProvider struct {
	config     config.LLMConfig
	httpClient *httpclient.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
	Error      *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage anthropicUsage  `json:"usage"`
	Error *anthropicError `json:"error,omitempty"`
}

// NewAnthropicProvider creates a provider from configuration.
func NewAnthropicProvider(cfg config.LLMConfig) (*AnthropicProvider, error) {
	cfg.SetDefaults()
	if cfg.APIKey == "" {
		return nil, fault.New(fault.KindRequest, component, "new_provider", "anthropic requires an api key")
	}
	return &AnthropicProvider{
		config:     cfg,
		httpClient: newProviderHTTPClient(cfg, httpclient.ParseAnthropicRateLimitHeaders),
	}, nil
}

func (p *AnthropicProvider) ModelName() string {
	return p.config.Model
}

func (p *AnthropicProvider) Close() error {
	return nil
}

// Complete performs a blocking messages call.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*CompletionResult, error) {
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

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, "complete", "malformed provider response", err)
	}
	if response.Error != nil {
		return nil, fault.New(fault.KindUpstream, component, "complete",
			fmt.Sprintf("provider error: %s", response.Error.Message))
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &CompletionResult{
		Text:         text.String(),
		Model:        req.Model,
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
	}, nil
}

// CompleteStream performs a streaming messages call over SSE.
func (p *AnthropicProvider) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	outputCh := make(chan StreamChunk, 64)

	go func() {
		defer close(outputCh)
		if err := p.streamRequest(ctx, p.buildRequest(req, true), outputCh); err != nil {
			outputCh <- StreamChunk{Type: ChunkTypeError, Err: err}
		}
	}()

	return outputCh, nil
}

func (p *AnthropicProvider) buildRequest(req Request, stream bool) anthropicRequest {
	return anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.User}},
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

func (p *AnthropicProvider) newHTTPRequest(ctx context.Context, request anthropicRequest) (*http.Request, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fault.Wrap(fault.KindRequest, component, "complete", "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/v1/messages", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fault.Wrap(fault.KindRequest, component, "complete", "failed to create HTTP request", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return req, nil
}

func (p *AnthropicProvider) streamRequest(ctx context.Context, request anthropicRequest, outputCh chan<- StreamChunk) error {
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

	outputTokens := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				outputCh <- StreamChunk{Type: ChunkTypeText, Text: event.Delta.Text}
			}
		case "message_delta":
			if event.Usage.OutputTokens > 0 {
				outputTokens = event.Usage.OutputTokens
			}
		case "error":
			message := "stream error"
			if event.Error != nil {
				message = event.Error.Message
			}
			return fault.New(fault.KindUpstream, component, "complete_stream",
				fmt.Sprintf("provider error: %s", message))
		case "message_stop":
			outputCh <- StreamChunk{Type: ChunkTypeDone, Tokens: outputTokens}
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return classifyHTTPFailure("complete_stream", nil, err)
	}

	outputCh <- StreamChunk{Type: ChunkTypeDone, Tokens: outputTokens}
	return nil
}
