// Package google adapts Google Gemini to the model.Completer interface.
package google

import (
	"context"
	"errors"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/querylab/biflow/graph/model"
)

// Completer calls the Gemini generate-content API.
type Completer struct {
	client *genai.Client
	model  string
}

// New creates a Gemini-backed completer. Call Close when done to release
// the underlying gRPC connection.
//
// model is a model name such as "gemini-1.5-pro".
func New(ctx context.Context, apiKey, modelName string) (*Completer, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if modelName == "" {
		return nil, errors.New("model cannot be empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Completer{client: client, model: modelName}, nil
}

// Close releases the client connection.
func (c *Completer) Close() error { return c.client.Close() }

// Complete implements model.Completer.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.GenerativeModel(c.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return collectText(resp), nil
}

// CompleteStream implements model.Completer.
func (c *Completer) CompleteStream(ctx context.Context, prompt string) (<-chan model.Chunk, error) {
	iter := c.client.GenerativeModel(c.model).GenerateContentStream(ctx, genai.Text(prompt))
	ch := make(chan model.Chunk)
	go func() {
		defer close(ch)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				ch <- model.Chunk{Err: err}
				return
			}
			if text := collectText(resp); text != "" {
				select {
				case ch <- model.Chunk{Text: text}:
				case <-ctx.Done():
					ch <- model.Chunk{Err: ctx.Err()}
					return
				}
			}
		}
	}()
	return ch, nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	var out string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out += string(text)
			}
		}
	}
	return out
}
