// Package llm wraps an OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

const (
	DefaultEndpoint = "https://api.deepseek.com"

	ModelChat     = "deepseek-chat"
	ModelReasoner = "deepseek-reasoner"
)

var ErrNoKey = errors.New("no generative api key configured")

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Client struct {
	Endpoint string // "" means DefaultEndpoint.
	Key      string
	HTTP     *http.Client // nil means http.DefaultClient.
}

type reqChat struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type resChat struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends the messages to the default chat model.
func (c *Client) Chat(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	return c.ChatModel(ctx, ModelChat, messages, maxTokens)
}

// ChatPreferReasoner tries the reasoning model first and falls back to the
// chat model when it is unavailable. Used for selection calls where the extra
// deliberation pays off but is not essential.
func (c *Client) ChatPreferReasoner(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	out, err := c.ChatModel(ctx, ModelReasoner, messages, maxTokens)
	if err == nil {
		return out, nil
	}
	log.Printf("[WARN]: %s failed, falling back to %s: %v", ModelReasoner, ModelChat, err)
	return c.ChatModel(ctx, ModelChat, messages, maxTokens)
}

func (c *Client) ChatModel(ctx context.Context, model string, messages []Message, maxTokens int) (string, error) {
	if c.Key == "" {
		return "", ErrNoKey
	}

	payload, err := json.Marshal(reqChat{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling chat request: %w", err)
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		strings.TrimSuffix(endpoint, "/")+"/chat/completions",
		bytes.NewReader(payload),
	)
	if err != nil {
		return "", fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Key)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat status code %d: %q", res.StatusCode, string(body))
	}

	result := resChat{}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshalling chat response: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("model error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("chat response has no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
