// Package langhandler defines the language handler boundary (§4.3): the
// interface every per-language execution backend implements, a registry
// mirroring the teacher's executor.Manager, and a subprocess-based
// implementation for the one illustrative handler this repository ships.
package langhandler

import (
	"context"
	"fmt"
	"sync"
)

// LogSink receives appended stdout/stderr lines for a running job.
type LogSink interface {
	Write(line string)
}

// StreamSink receives ordered WM_STREAM: chunks, each assigned a monotonic
// offset by the caller.
type StreamSink interface {
	Emit(chunk []byte)
}

// Result is what Execute returns on success: the parsed result JSON and
// whether the handler used the stream sink at all (workers only persist
// v2_job_result_stream rows when a handler actually streamed).
type Result struct {
	ResultJSON []byte
	UsedStream bool
}

// Handler is the contract every language backend implements (§4.3).
// Implementations MAY suspend (return a Suspended outcome instead of a
// Result) and MUST surface structured errors rather than bare Go errors so
// callers can persist {name, message, stack}.
type Handler interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Request carries everything a handler needs to run one job.
type Request struct {
	JobID       string
	Code        string
	Args        map[string]any
	JobDir      string
	Env         map[string]string
	Logs        LogSink
	Stream      StreamSink
	CancelToken <-chan struct{}
}

// Registry maps a language name to its Handler, mirroring the teacher's
// executor.Manager registration pattern.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(language string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if language == "" {
		return fmt.Errorf("langhandler: language must not be empty")
	}
	r.handlers[language] = h
	return nil
}

func (r *Registry) Get(language string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[language]
	if !ok {
		return nil, fmt.Errorf("langhandler: no handler registered for %q", language)
	}
	return h, nil
}

func (r *Registry) Has(language string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[language]
	return ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	return out
}

func (r *Registry) Unregister(language string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, language)
}
