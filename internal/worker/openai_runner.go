package worker

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIRunner is a non-streaming AgentRunner backed by
// sashabaranov/go-openai, grounded on internal/agent/providers/openai.go's
// client construction. It never shells out and never touches tmux;
// cmd/chief selects it when worker.agent.kind is "openai". Each run sends
// the prompt as one chat completion and emits the reply as a single text
// event, so no tool-use events are produced.
type OpenAIRunner struct {
	client *openai.Client
	model  string
}

// NewOpenAIRunner builds an OpenAIRunner. An empty apiKey yields a runner
// whose Run always fails, matching the teacher's "client nil when no key"
// convention in providers.NewOpenAIProvider.
func NewOpenAIRunner(apiKey, model string) *OpenAIRunner {
	if model == "" {
		model = "gpt-4o-mini"
	}
	r := &OpenAIRunner{model: model}
	if apiKey != "" {
		r.client = openai.NewClient(apiKey)
	}
	return r
}

func (r *OpenAIRunner) Run(ctx context.Context, req RunRequest) (<-chan Event, *RunResult, error) {
	if r.client == nil {
		return nil, nil, fmt.Errorf("worker runner: openai api key not configured")
	}
	events := make(chan Event, 1)
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	})
	if err != nil {
		close(events)
		return nil, nil, fmt.Errorf("worker runner: openai completion: %w", err)
	}
	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	events <- Event{Kind: EventText, Text: text}
	close(events)
	return events, &RunResult{AgentSessionID: resp.ID}, nil
}

func (r *OpenAIRunner) Interrupt(string) bool { return false }
