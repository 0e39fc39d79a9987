package agent

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

const (
	// DefaultToolConcurrency bounds how many invocations of one round
	// run at the same time.
	DefaultToolConcurrency = 4
	// DefaultToolTimeout bounds a single invocation.
	DefaultToolTimeout = 90 * time.Second
)

// Coordinator fans the invocations of one round out to the tools and
// joins the results back in invocation order. Every invocation yields
// exactly one result message; failed ones carry the error marker text
// instead of a result.
type Coordinator struct {
	registry    *Registry
	exec        *executor
	concurrency int
}

// NewCoordinator builds a coordinator over the registry. Non-positive
// limits fall back to the defaults.
func NewCoordinator(registry *Registry, tracer agentports.Tracer, concurrency int, timeout time.Duration) *Coordinator {
	if concurrency < 1 {
		concurrency = DefaultToolConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &Coordinator{
		registry: registry,
		exec: &executor{
			registry:  registry,
			validator: NewArgumentValidator(),
			tracer:    tracer,
			timeout:   timeout,
		},
		concurrency: concurrency,
	}
}

// Registry exposes the coordinator's tool set.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// ExecuteRound runs all invocations of one round and returns their
// result messages positioned exactly like the invocations that produced
// them. The call returns only after every invocation has settled.
func (c *Coordinator) ExecuteRound(ctx context.Context, calls []dial.ToolCall, scope CallScope) []dial.Message {
	if len(calls) == 0 {
		return nil
	}

	results := make([]dial.Message, len(calls))
	workers := pool.New().WithMaxGoroutines(c.concurrency)
	for i, call := range calls {
		workers.Go(func() {
			results[i] = c.exec.run(ctx, scope, call)
		})
	}
	workers.Wait()
	return results
}
