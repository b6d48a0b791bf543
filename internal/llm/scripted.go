package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedProvider implements Provider for testing. It replays responses in
// order and records every request.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []*ChatResponse
	errs      []error
	requests  []ChatRequest
}

// NewScriptedProvider creates a provider that answers with responses in order.
func NewScriptedProvider(responses ...*ChatResponse) *ScriptedProvider {
	return &ScriptedProvider{responses: responses}
}

// FailNext makes the next Chat call return err.
func (p *ScriptedProvider) FailNext(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, err)
}

// Push queues more responses.
func (p *ScriptedProvider) Push(responses ...*ChatResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, responses...)
}

// Chat implements Provider.
func (p *ScriptedProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return nil, err
	}
	if len(p.responses) == 0 {
		return nil, fmt.Errorf("llm: scripted provider exhausted after %d calls", len(p.requests))
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

// Requests returns a copy of the recorded requests.
func (p *ScriptedProvider) Requests() []ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ChatRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// Text builds a plain text response.
func Text(content string, tokens int) *ChatResponse {
	return &ChatResponse{Content: content, FinishReason: "stop", Usage: &Usage{TotalTokens: tokens}}
}

// Calls builds a response that requests tool calls.
func Calls(tokens int, calls ...ToolCall) *ChatResponse {
	return &ChatResponse{ToolCalls: calls, FinishReason: "tool_calls", Usage: &Usage{TotalTokens: tokens}}
}
