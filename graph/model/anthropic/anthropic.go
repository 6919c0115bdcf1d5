// Package anthropic adapts the Anthropic Messages API to the
// model.Completer interface.
package anthropic

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/querylab/biflow/graph/model"
)

const defaultMaxTokens = 4096

// Completer calls the Anthropic Messages API.
type Completer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New creates an Anthropic-backed completer.
//
// model is a model name such as "claude-sonnet-4-5".
func New(apiKey, modelName string) (*Completer, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if modelName == "" {
		return nil, errors.New("model cannot be empty")
	}
	return &Completer{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     modelName,
		maxTokens: defaultMaxTokens,
	}, nil
}

// Complete implements model.Completer.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, c.params(prompt))
	if err != nil {
		return "", err
	}
	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// CompleteStream implements model.Completer.
func (c *Completer) CompleteStream(ctx context.Context, prompt string) (<-chan model.Chunk, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.params(prompt))
	ch := make(chan model.Chunk)
	go func() {
		defer close(ch)
		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
			if !ok || text.Text == "" {
				continue
			}
			select {
			case ch <- model.Chunk{Text: text.Text}:
			case <-ctx.Done():
				ch <- model.Chunk{Err: ctx.Err()}
				return
			}
		}
		if err := stream.Err(); err != nil {
			ch <- model.Chunk{Err: err}
		}
	}()
	return ch, nil
}

func (c *Completer) params(prompt string) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
}
