// Package openaillm adapts the OpenAI chat-completions API to llm.Client.
// Retry policy lives here, not in callers: the SDK retries transient
// failures a bounded number of times with exponential backoff and jitter,
// and an error from Chat means that budget is spent.
package openaillm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/iwapim/pimbot/llm"
)

const (
	defaultMaxRetries     = 3
	defaultRequestTimeout = 60 * time.Second
)

// Options configures the adapter.
type Options struct {
	APIKey string
	// BaseURL overrides the API endpoint, for proxies and compatible servers.
	BaseURL string
	// Model is the default model for requests that do not name one.
	Model string
	// MaxRetries bounds the SDK retry budget. Zero means 3.
	MaxRetries int
	// RequestTimeout caps one attempt. Zero means 60s.
	RequestTimeout time.Duration
}

// Client is an llm.Client backed by OpenAI chat completions.
type Client struct {
	api   openai.Client
	model string
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(maxRetries),
		option.WithRequestTimeout(timeout),
	}
	if baseURL := strings.TrimSpace(opts.BaseURL); baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}

	return &Client{
		api:   openai.NewClient(reqOpts...),
		model: strings.TrimSpace(opts.Model),
	}, nil
}

// Chat submits one turn sequence plus the tool catalog and classifies the
// reply at this boundary.
func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Reply, error) {
	if c == nil {
		return llm.Reply{}, fmt.Errorf("openai client is not initialized")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	if model == "" {
		return llm.Reply{}, fmt.Errorf("model is required")
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toSDKMessages(req.Messages),
	}
	if tools := toSDKTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	completion, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Reply{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return llm.Classify("", nil), nil
	}
	message := completion.Choices[0].Message
	return llm.Classify(message.Content, fromToolCalls(message.ToolCalls)), nil
}

func toSDKMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "user":
			out = append(out, openai.UserMessage(m.Content))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				ToolCalls: toSDKToolCalls(m.ToolCalls),
			}
			if strings.TrimSpace(m.Content) != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case "tool":
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func toSDKToolCalls(calls []llm.ToolCall) []openai.ChatCompletionMessageToolCallUnionParam {
	out := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(calls))
	for _, tc := range calls {
		out = append(out, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.RawArguments,
				},
			},
		})
	}
	return out
}

func toSDKTools(specs []llm.ToolSpec) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		def := shared.FunctionDefinitionParam{
			Name:       spec.Name,
			Parameters: shared.FunctionParameters(spec.Parameters),
		}
		if strings.TrimSpace(spec.Description) != "" {
			def.Description = openai.String(spec.Description)
		}
		out = append(out, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{Function: def},
		})
	}
	return out
}

func fromToolCalls(calls []openai.ChatCompletionMessageToolCallUnion) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llm.ToolCall, 0, len(calls))
	for _, tc := range calls {
		name := strings.TrimSpace(tc.Function.Name)
		if name == "" {
			continue
		}
		out = append(out, llm.ToolCall{
			ID:           tc.ID,
			Name:         name,
			RawArguments: tc.Function.Arguments,
		})
	}
	return out
}
