package llm

import (
	"errors"
	"fmt"
)

// ErrStreamStalled is returned by a watched stream when no event arrives
// within the configured idle window.
var ErrStreamStalled = errors.New("stream stalled")

// ErrAborted is returned when the user cancels an in-flight turn.
var ErrAborted = errors.New("turn aborted")

// TransportError wraps a network or HTTP-level failure talking to a
// provider. StatusCode is zero when the request never got a response.
type TransportError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transport error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a response body the adapter could not interpret.
type ProtocolError struct {
	Provider string
	Detail   string
	Err      error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: protocol error: %s: %v", e.Provider, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: protocol error: %s", e.Provider, e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ToolExecutionError reports a failed tool invocation. It never aborts the
// run; the dispatcher converts it into an error tool result.
type ToolExecutionError struct {
	Name string
	ID   string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (%s): %v", e.Name, e.ID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// TruncationExceededError reports that the model kept running out of output
// budget while preparing tool calls, past the retry ceiling.
type TruncationExceededError struct {
	Attempts int
}

func (e *TruncationExceededError) Error() string {
	return fmt.Sprintf("response truncated while requesting tools after %d retries", e.Attempts)
}
