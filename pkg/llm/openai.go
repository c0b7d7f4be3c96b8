package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
	"github.com/paideia-labs/paideia/pkg/httpclient"
)

// OpenAIProvider speaks the OpenAI chat completions API.
type OpenAIProvider struct {
	config     config.LLMConfig
	httpClient *httpclient.Client
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	Temperature    float64               `json:"temperature"`
	Stream         bool                  `json:"stream"`
	StreamOptions  *openAIStreamOptions  `json:"stream_options,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIStreamResponse struct {
	Choices []openAIStreamChoice `json:"choices"`
	Usage   *openAIUsage         `json:"usage,omitempty"`
	Error   *openAIError         `json:"error,omitempty"`
}

type openAIStreamChoice struct {
	Delta        openAIDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type openAIDelta struct {
	Content string `json:"content,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIProvider creates a provider from configuration.
func NewOpenAIProvider(cfg config.LLMConfig) (*OpenAIProvider, error) {
	cfg.SetDefaults()
	if cfg.APIKey == "" {
		return nil, fault.New(fault.KindRequest, component, "new_provider", "openai requires an api key")
	}
	return &OpenAIProvider{
		config:     cfg,
		httpClient: newProviderHTTPClient(cfg, httpclient.ParseOpenAIRateLimitHeaders),
	}, nil
}

func (p *OpenAIProvider) ModelName() string {
	return p.config.Model
}

func (p *OpenAIProvider) Close() error {
	return nil
}

// Complete performs a blocking chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*CompletionResult, error) {
	body, err := p.doRequest(ctx, p.buildRequest(req, false), "complete")
	if err != nil {
		return nil, err
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, "complete", "malformed provider response", err)
	}
	if response.Error != nil {
		return nil, fault.New(fault.KindUpstream, component, "complete",
			fmt.Sprintf("provider error: %s", response.Error.Message))
	}
	if len(response.Choices) == 0 {
		return nil, fault.New(fault.KindUpstream, component, "complete", "provider returned no choices")
	}

	return &CompletionResult{
		Text:         response.Choices[0].Message.Content,
		Model:        req.Model,
		InputTokens:  response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
	}, nil
}

// CompleteStream performs a streaming chat completion over SSE.
func (p *OpenAIProvider) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	outputCh := make(chan StreamChunk, 64)

	go func() {
		defer close(outputCh)
		if err := p.streamRequest(ctx, p.buildRequest(req, true), outputCh); err != nil {
			outputCh <- StreamChunk{Type: ChunkTypeError, Err: err}
		}
	}()

	return outputCh, nil
}

func (p *OpenAIProvider) buildRequest(req Request, stream bool) openAIRequest {
	messages := make([]openAIMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.User})

	out := openAIRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		out.MaxTokens = &maxTokens
	}
	if req.JSONMode {
		out.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	if stream {
		out.StreamOptions = &openAIStreamOptions{IncludeUsage: true}
	}
	return out
}

func (p *OpenAIProvider) newHTTPRequest(ctx context.Context, request openAIRequest) (*http.Request, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fault.Wrap(fault.KindRequest, component, "complete", "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fault.Wrap(fault.KindRequest, component, "complete", "failed to create HTTP request", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	return req, nil
}

func (p *OpenAIProvider) doRequest(ctx context.Context, request openAIRequest, op string) ([]byte, error) {
	req, err := p.newHTTPRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		drainBody(resp)
		return nil, classifyHTTPFailure(op, resp, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.KindUpstream, component, op, "failed to read provider response", err)
	}
	return body, nil
}

func (p *OpenAIProvider) streamRequest(ctx context.Context, request openAIRequest, outputCh chan<- StreamChunk) error {
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

	reader := bufio.NewReader(resp.Body)
	totalTokens := 0

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return classifyHTTPFailure("complete_stream", nil, err)
		}

		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		line = line[6:]

		if bytes.Equal(line, []byte("[DONE]")) {
			break
		}

		var streamResp openAIStreamResponse
		if err := json.Unmarshal(line, &streamResp); err != nil {
			continue
		}
		if streamResp.Error != nil {
			return fault.New(fault.KindUpstream, component, "complete_stream",
				fmt.Sprintf("provider error: %s", streamResp.Error.Message))
		}
		if streamResp.Usage != nil {
			totalTokens = streamResp.Usage.CompletionTokens
		}
		if len(streamResp.Choices) == 0 {
			continue
		}
		if text := streamResp.Choices[0].Delta.Content; text != "" {
			outputCh <- StreamChunk{Type: ChunkTypeText, Text: text}
		}
	}

	outputCh <- StreamChunk{Type: ChunkTypeDone, Tokens: totalTokens}
	return nil
}
