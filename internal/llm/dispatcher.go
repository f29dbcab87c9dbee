package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// RedirectFunc lets the host rewrite a tool call before dispatch, e.g.
// external file writes addressing the open editor document are redirected to
// the internal editor capability.
type RedirectFunc func(call ToolCall) (ToolCall, bool)

// DispatchResult is the outcome of one tool invocation.
type DispatchResult struct {
	Call    ToolCall
	Content string
	IsError bool
}

// Dispatcher executes tool calls against the registry. External calls race a
// per-call timeout against the turn context; internal calls run inline.
type Dispatcher struct {
	registry    *ToolRegistry
	timeout     time.Duration
	resultLimit int
	redirect    RedirectFunc
}

func NewDispatcher(registry *ToolRegistry, timeout time.Duration, resultLimit int) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		timeout:     timeout,
		resultLimit: resultLimit,
	}
}

// SetRedirect installs the rewrite hook. Applied before name resolution.
func (d *Dispatcher) SetRedirect(fn RedirectFunc) { d.redirect = fn }

// Execute runs one tool call to completion. It never returns an error: every
// failure mode (unknown tool, malformed arguments, execution error, timeout,
// cancellation) is reported as an error result for the model to react to.
func (d *Dispatcher) Execute(ctx context.Context, call ToolCall) DispatchResult {
	if d.redirect != nil {
		if rewritten, ok := d.redirect(call); ok {
			call = rewritten
		}
	}

	if len(call.Arguments) > 0 && !json.Valid(call.Arguments) {
		fmt.Fprintf(os.Stderr, "warning: dropping tool call %s (%s): malformed arguments\n", call.Name, call.ID)
		return DispatchResult{Call: call, Content: "tool call arguments were not valid JSON; call not executed", IsError: true}
	}

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		return DispatchResult{Call: call, Content: fmt.Sprintf("unknown tool: %s", call.Name), IsError: true}
	}

	if d.registry.IsInternal(call.Name) {
		return d.finish(call, d.runInline(ctx, tool, call))
	}
	return d.finish(call, d.runWithTimeout(ctx, tool, call))
}

type execOutcome struct {
	content string
	err     error
}

func (d *Dispatcher) runInline(ctx context.Context, tool Tool, call ToolCall) execOutcome {
	if err := ctx.Err(); err != nil {
		return execOutcome{err: ErrAborted}
	}
	content, err := tool.Execute(ctx, call.Arguments)
	return execOutcome{content: content, err: err}
}

// runWithTimeout races the tool against its deadline and the turn context.
// An abort wins immediately even when the timeout would fire later; the
// losing goroutine is left to drain on its own and its result is discarded.
func (d *Dispatcher) runWithTimeout(ctx context.Context, tool Tool, call ToolCall) execOutcome {
	timeout := d.timeout
	if timeout <= 0 {
		return d.runInline(ctx, tool, call)
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan execOutcome, 1)
	go func() {
		content, err := tool.Execute(execCtx, call.Arguments)
		done <- execOutcome{content: content, err: err}
	}()

	select {
	case outcome := <-done:
		return outcome
	case <-ctx.Done():
		return execOutcome{err: ErrAborted}
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return execOutcome{err: ErrAborted}
		}
		return execOutcome{err: fmt.Errorf("tool %s timed out after %s", call.Name, timeout)}
	}
}

func (d *Dispatcher) finish(call ToolCall, outcome execOutcome) DispatchResult {
	if outcome.err != nil {
		if outcome.err == ErrAborted {
			return DispatchResult{Call: call, Content: "cancelled", IsError: true}
		}
		execErr := &ToolExecutionError{Name: call.Name, ID: call.ID, Err: outcome.err}
		return DispatchResult{Call: call, Content: execErr.Error(), IsError: true}
	}

	content := outcome.content
	if d.resultLimit > 0 && len(content) > d.resultLimit {
		content = content[:d.resultLimit] + resultTruncatedMarker
	}
	return DispatchResult{Call: call, Content: content}
}
