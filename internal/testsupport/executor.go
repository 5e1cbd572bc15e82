package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"reelforge/internal/adapter"
)

// StepFunc scripts one tool's behaviour.
type StepFunc func(ctx context.Context, args adapter.StepArgs) (json.RawMessage, error)

// Call records one tool invocation.
type Call struct {
	Tool string
	Args adapter.StepArgs
}

// ScriptedExecutor is a step executor whose tools are scripted per name.
// Unscripted tools fail.
type ScriptedExecutor struct {
	mu    sync.Mutex
	steps map[string]StepFunc
	calls []Call
}

// NewScriptedExecutor returns an executor with no tools scripted.
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{steps: make(map[string]StepFunc)}
}

// On scripts tool with fn and returns the executor for chaining.
func (s *ScriptedExecutor) On(tool string, fn StepFunc) *ScriptedExecutor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[tool] = fn
	return s
}

// Returns scripts tool to answer with the JSON encoding of value.
func (s *ScriptedExecutor) Returns(tool string, value any) *ScriptedExecutor {
	raw, err := json.Marshal(value)
	return s.On(tool, func(context.Context, adapter.StepArgs) (json.RawMessage, error) {
		if err != nil {
			return nil, err
		}
		return raw, nil
	})
}

// Execute runs the scripted tool.
func (s *ScriptedExecutor) Execute(ctx context.Context, tool string, args adapter.StepArgs) (json.RawMessage, error) {
	s.mu.Lock()
	fn := s.steps[tool]
	s.calls = append(s.calls, Call{Tool: tool, Args: args})
	s.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("tool %s not scripted", tool)
	}
	return fn(ctx, args)
}

// Calls returns a copy of the recorded invocations.
func (s *ScriptedExecutor) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallFor returns the first recorded invocation of tool.
func (s *ScriptedExecutor) CallFor(tool string) (Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, call := range s.calls {
		if call.Tool == tool {
			return call, true
		}
	}
	return Call{}, false
}
