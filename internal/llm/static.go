// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Call records a single request made to a Static generator.
type Call struct {
	Prompt    Prompt
	Grounding string
}

// Static is a Generator that answers from canned responses. Responses keyed
// by operation are returned every time; otherwise queued responses are
// consumed in order. It is used for offline runs and tests.
type Static struct {
	mu          sync.Mutex
	byOperation map[string]string
	queue       []string
	err         error
	calls       []Call
}

// NewStatic returns a Static generator with per-operation responses.
func NewStatic(byOperation map[string]string) *Static {
	if byOperation == nil {
		byOperation = make(map[string]string)
	}
	return &Static{byOperation: byOperation}
}

// LoadStatic reads a JSON object mapping operation names to responses.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading static responses: %w", err)
	}
	var byOperation map[string]string
	if err := json.Unmarshal(data, &byOperation); err != nil {
		return nil, fmt.Errorf("parsing static responses: %w", err)
	}
	return NewStatic(byOperation), nil
}

// Enqueue appends responses returned in order for operations without a fixed response.
func (s *Static) Enqueue(responses ...string) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, responses...)
	return s
}

// FailWith makes every subsequent call return err.
func (s *Static) FailWith(err error) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Calls returns the requests received so far.
func (s *Static) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// GenerateText implements Generator.
func (s *Static) GenerateText(ctx context.Context, prompt Prompt, grounding string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Prompt: prompt, Grounding: grounding})
	if s.err != nil {
		return "", s.err
	}
	if resp, ok := s.byOperation[prompt.Operation]; ok {
		return resp, nil
	}
	if len(s.queue) == 0 {
		return "", fmt.Errorf("static generator: no response for operation %q", prompt.Operation)
	}
	resp := s.queue[0]
	s.queue = s.queue[1:]
	return resp, nil
}
