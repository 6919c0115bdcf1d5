package model

import (
	"context"
	"sync"
	"unicode/utf8"
)

// MockCompleter is a test implementation of Completer.
//
// It returns scripted replies in order and records every prompt, so tests
// can both drive a workflow and assert on what the nodes asked for.
//
//	mock := &model.MockCompleter{
//	    Replies: []string{`{"intent":"query"}`, "SELECT 1"},
//	}
//	out, _ := mock.Complete(ctx, prompt) // first reply
//
// If all replies are consumed the last one repeats. If Err is set it is
// returned instead of a reply.
type MockCompleter struct {
	// Replies is the sequence of completions to return, in order.
	Replies []string

	// Err, when set, is returned by every call instead of a reply.
	Err error

	// Prompts records every prompt received, completions and streams alike.
	Prompts []string

	mu    sync.Mutex
	index int
}

// Complete implements Completer.
func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	return m.next(), nil
}

// CompleteStream implements Completer. The scripted reply is delivered
// split into word-sized chunks to exercise consumers' ordering handling.
func (m *MockCompleter) CompleteStream(ctx context.Context, prompt string) (<-chan Chunk, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	err := m.Err
	var reply string
	if err == nil {
		reply = m.next()
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		for i := 0; i < len(reply); {
			end := i + 8
			if end > len(reply) {
				end = len(reply)
			} else {
				// Never split a multibyte rune across chunks.
				for !utf8.RuneStart(reply[end]) {
					end--
				}
			}
			select {
			case ch <- Chunk{Text: reply[i:end]}:
			case <-ctx.Done():
				ch <- Chunk{Err: ctx.Err()}
				return
			}
			i = end
		}
	}()
	return ch, nil
}

// CallCount reports how many prompts the mock has received.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

func (m *MockCompleter) next() string {
	if len(m.Replies) == 0 {
		return ""
	}
	reply := m.Replies[m.index]
	if m.index < len(m.Replies)-1 {
		m.index++
	}
	return reply
}
