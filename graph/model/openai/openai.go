// Package openai adapts OpenAI chat completions to the model.Completer
// interface.
package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/querylab/biflow/graph/model"
)

// Completer calls the OpenAI chat completions API. Safe for concurrent
// use; the underlying client handles connection pooling.
type Completer struct {
	client *openai.Client
	model  string
}

// New creates an OpenAI-backed completer.
//
// model is a chat model name such as "gpt-4o" or "gpt-4o-mini".
func New(apiKey, modelName string) (*Completer, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if modelName == "" {
		return nil, errors.New("model cannot be empty")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Completer{client: &client, model: modelName}, nil
}

// Complete implements model.Completer.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, c.params(prompt))
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai: empty completion")
	}
	return completion.Choices[0].Message.Content, nil
}

// CompleteStream implements model.Completer.
func (c *Completer) CompleteStream(ctx context.Context, prompt string) (<-chan model.Chunk, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(prompt))
	ch := make(chan model.Chunk)
	go func() {
		defer close(ch)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				select {
				case ch <- model.Chunk{Text: delta}:
				case <-ctx.Done():
					ch <- model.Chunk{Err: ctx.Err()}
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			ch <- model.Chunk{Err: err}
		}
	}()
	return ch, nil
}

func (c *Completer) params(prompt string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
	}
}
