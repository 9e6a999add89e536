package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ChatOptions configures a ChatClient
type ChatOptions struct {
	BaseURL       string // OpenAI-compatible root, e.g. http://localhost:11434/v1
	Model         string
	APIKey        string
	MaxToolRounds int
	Timeout       time.Duration
	Logger        *slog.Logger
}

// ChatClient drives an OpenAI-compatible chat completions endpoint with
// function calling. Ollama and OpenAI both speak this protocol.
type ChatClient struct {
	opts   ChatOptions
	client *http.Client
	log    *slog.Logger
}

// NewChatClient creates a ChatClient
func NewChatClient(opts ChatOptions) *ChatClient {
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = 8
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatClient{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		log:    logger,
	}
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function functionSpec `json:"function"`
}

type functionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []toolSpec    `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Run sends the prompt and executes tool calls until the model answers
// without one or MaxToolRounds is reached.
func (c *ChatClient) Run(ctx context.Context, prompt Prompt, tools *Registry) (string, error) {
	promptJSON, err := json.MarshalIndent(prompt, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding prompt: %w", err)
	}

	messages := []chatMessage{{Role: "user", Content: string(promptJSON)}}
	specs := toolSpecs(tools)

	for round := 0; round < c.opts.MaxToolRounds; round++ {
		msg, err := c.complete(ctx, chatRequest{Model: c.opts.Model, Messages: messages, Tools: specs})
		if err != nil {
			return "", err
		}
		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			messages = append(messages, chatMessage{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    c.invoke(ctx, tools, call),
			})
		}
	}

	return fmt.Sprintf("Stopped after %d tool rounds without a final answer.", c.opts.MaxToolRounds), nil
}

// invoke runs one tool call. Tool failures are reported back to the model as text.
func (c *ChatClient) invoke(ctx context.Context, tools *Registry, call toolCall) string {
	args, err := decodeArgs(call.Function.Arguments)
	if err != nil {
		return "error: " + err.Error()
	}
	c.log.Debug("tool call", "tool", call.Function.Name, "args", len(args))

	out, err := tools.Invoke(ctx, call.Function.Name, args)
	if err != nil {
		c.log.Warn("tool call failed", "tool", call.Function.Name, "error", err)
		return "error: " + err.Error()
	}
	return out
}

func (c *ChatClient) complete(ctx context.Context, body chatRequest) (chatMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return chatMessage{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.opts.BaseURL, "/")+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return chatMessage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return chatMessage{}, fmt.Errorf("chat completions: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return chatMessage{}, fmt.Errorf("reading chat response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return chatMessage{}, fmt.Errorf("chat completions returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return chatMessage{}, fmt.Errorf("chat completions returned %d: %s", resp.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 {
		return chatMessage{}, fmt.Errorf("chat completions returned no choices")
	}
	return parsed.Choices[0].Message, nil
}

func toolSpecs(tools *Registry) []toolSpec {
	var specs []toolSpec
	for _, t := range tools.Tools() {
		props := map[string]any{}
		required := []string{}
		for _, p := range t.Params {
			props[p.Name] = map[string]any{"type": "string", "description": p.Description}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		specs = append(specs, toolSpec{
			Type: "function",
			Function: functionSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": props,
					"required":   required,
				},
			},
		})
	}
	return specs
}

// decodeArgs turns the JSON argument object into string arguments
func decodeArgs(raw string) (map[string]string, error) {
	args := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	for k, v := range decoded {
		switch val := v.(type) {
		case string:
			args[k] = val
		case nil:
			args[k] = ""
		default:
			b, _ := json.Marshal(val)
			args[k] = string(b)
		}
	}
	return args, nil
}
