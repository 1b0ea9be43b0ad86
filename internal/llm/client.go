// Package llm is the conversational fallback: transcripts that match no
// compiled command are sent to a chat model along with the running history.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"strings"
	"sync"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"friday/internal/config"
)

// probeTimeout bounds the TCP reachability check before each request, so an
// offline box answers with the apology line instead of hanging.
const probeTimeout = 4 * time.Second

// Client keeps one conversation for the process lifetime. Chat runs on the
// listener's dispatch path while ChatImage arrives on the bus callback, so
// the history is guarded by a mutex.
type Client struct {
	api       openai.Client
	model     string
	maxTokens int64
	host      string
	hasKey    bool

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
}

// New builds the client. The persona becomes the conversation's system
// message. Extra request options come after the defaults, so callers can
// override the HTTP client or base URL.
func New(cfg config.LLM, persona string, extra ...option.RequestOption) *Client {
	opts := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, extra...)

	c := &Client{
		api:       openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		host:      cfg.Host,
		hasKey:    cfg.APIKey != "",
	}
	if persona != "" {
		c.history = append(c.history, openai.SystemMessage(persona))
	}
	return c
}

// Chat sends text as the next user turn and returns the assistant's reply.
// The exchange is appended to the history only on success.
func (c *Client) Chat(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, openai.UserMessage(text))
}

// ChatImage sends text plus a JPEG for the model to look at, inlined as a
// data URL.
func (c *Client) ChatImage(ctx context.Context, text string, jpeg []byte) (string, error) {
	url := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
	return c.complete(ctx, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(text),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}),
	}))
}

func (c *Client) complete(ctx context.Context, user openai.ChatCompletionMessageParamUnion) (string, error) {
	if !c.hasKey {
		return "", errors.New("no API key configured")
	}
	if err := c.probe(); err != nil {
		return "", fmt.Errorf("llm host unreachable: %w", err)
	}

	c.mu.Lock()
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(c.history)+1)
	messages = append(messages, c.history...)
	c.mu.Unlock()
	messages = append(messages, user)

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:  messages,
		Model:     openai.ChatModel(c.model),
		MaxTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", errors.New("empty message content")
	}

	log.Debug("Chat completion", "total_tokens", resp.Usage.TotalTokens)

	c.mu.Lock()
	c.history = append(c.history, user, openai.AssistantMessage(content))
	c.mu.Unlock()
	return strings.Clone(content), nil
}

func (c *Client) probe() error {
	conn, err := net.DialTimeout("tcp", c.host, probeTimeout)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}
