// Package llm provides the LLM-invocation tool against an OpenAI-style chat
// completions endpoint. Transport and API failures are structured tool
// errors; token usage is reported as metrics so it aggregates additively up
// the pipeline tree.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/vk/flowtree/internal/ctxlog"
	"github.com/vk/flowtree/internal/engine"
	"github.com/vk/flowtree/internal/registry"
)

// Input is the typed parameter contract for the llm tool.
type Input struct {
	Prompt      string  `flow:"prompt,required"`
	Model       string  `flow:"model"`
	BaseURL     string  `flow:"base_url"`
	MaxTokens   int     `flow:"max_tokens"`
	Temperature float64 `flow:"temperature"`
}

// Module registers the llm tool. Client is pluggable for tests.
type Module struct {
	Client *http.Client
}

// Register wires the tool into the registry under kind "llm".
func (m Module) Register(r *registry.Registry) {
	client := m.Client
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	r.RegisterTool("llm", &registry.RegisteredTool{
		NewInput: func() any { return new(Input) },
		Fn: func(ctx context.Context, input *Input) (*engine.ToolResult, error) {
			return invoke(ctx, client, input)
		},
	})
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func invoke(ctx context.Context, client *http.Client, input *Input) (*engine.ToolResult, error) {
	logger := ctxlog.FromContext(ctx).With("tool", "llm")

	baseURL := input.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("FLOWTREE_LLM_BASE_URL")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("llm base_url not configured (parameter or FLOWTREE_LLM_BASE_URL)")
	}

	body, err := json.Marshal(chatRequest{
		Model:       input.Model,
		Messages:    []chatMessage{{Role: "user", Content: input.Prompt}},
		MaxTokens:   input.MaxTokens,
		Temperature: input.Temperature,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := os.Getenv("FLOWTREE_LLM_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	logger.Debug("Calling completion endpoint.", "model", input.Model)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading llm response: %w", err)
	}
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding llm response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("llm API error (status %d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("llm API error: status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llm response contained no choices")
	}

	return &engine.ToolResult{
		Outputs: map[string]any{"text": parsed.Choices[0].Message.Content},
		Metrics: map[string]float64{
			"prompt_tokens":     float64(parsed.Usage.PromptTokens),
			"completion_tokens": float64(parsed.Usage.CompletionTokens),
		},
	}, nil
}
