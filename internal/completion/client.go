package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/oauth2/clientcredentials"

	"seiko-companion/internal/config"
	"seiko-companion/internal/persona"
)

// ErrMalformedResponse is returned when the API answers without usable text.
var ErrMalformedResponse = errors.New("malformed completion response")

// Client calls an OpenAI-compatible chat completion endpoint with the
// persona's system prompt and one user prompt.
type Client struct {
	api     *openai.Client
	model   string
	persona persona.Persona
	timeout time.Duration
}

// New builds a Client from config. When client credentials are configured
// the HTTP client fetches and refreshes bearer tokens itself.
func New(cfg config.Config, p persona.Persona) *Client {
	oc := openai.DefaultConfig(cfg.CompletionAPIKey)
	if cfg.CompletionBaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.CompletionBaseURL, "/")
	}
	if cfg.UsesClientCredentials() {
		cc := clientcredentials.Config{
			ClientID:     cfg.CompletionClientID,
			ClientSecret: cfg.CompletionClientSecret,
			TokenURL:     cfg.CompletionTokenURL,
			Scopes:       cfg.CompletionScopes,
		}
		oc.HTTPClient = cc.Client(context.Background())
	}
	return NewWithConfig(oc, cfg.Model, p, cfg.CompletionTimeout)
}

func NewWithConfig(oc openai.ClientConfig, model string, p persona.Persona, timeout time.Duration) *Client {
	if oc.HTTPClient == nil {
		oc.HTTPClient = &http.Client{}
	}
	return &Client{
		api:     openai.NewClientWithConfig(oc),
		model:   model,
		persona: p,
		timeout: timeout,
	}
}

// Complete sends prompt as a single user turn and returns the first choice.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.api.CreateChatCompletion(ctx, c.request(prompt))
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}
	return reply, nil
}

func (c *Client) request(prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.persona.Style.Temperature,
		MaxTokens:   c.persona.Style.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.persona.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
}

// Func adapts an ordinary function to the completer interface.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
