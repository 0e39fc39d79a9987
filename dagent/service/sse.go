package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// sseEmitter serializes server-sent events onto one response stream.
// Tools write to the choice from parallel goroutines, so every event
// goes through the emitter mutex and is flushed before the lock drops.
// After a write error the emitter goes dark and swallows further events;
// the client is gone, there is nobody left to tell.
type sseEmitter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	err     error
}

func newSSEEmitter(w http.ResponseWriter) (*sseEmitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseEmitter{w: w, flusher: flusher}, nil
}

// Send marshals v and emits it as one data event.
func (e *sseEmitter) Send(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", raw); err != nil {
		e.err = err
		return err
	}
	e.flusher.Flush()
	return nil
}

// Done emits the stream terminator.
func (e *sseEmitter) Done() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return
	}
	if _, err := fmt.Fprint(e.w, "data: [DONE]\n\n"); err != nil {
		e.err = err
		return
	}
	e.flusher.Flush()
}
