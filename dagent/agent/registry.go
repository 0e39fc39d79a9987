package agent

import (
	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

// Registry is the immutable set of tools available to one deployment.
// Built once at startup, read concurrently afterwards.
type Registry struct {
	tools  []agentports.Tool
	byName map[string]agentports.Tool
}

// NewRegistry builds a registry from the given tools. A later tool with
// a duplicate name replaces the earlier one in lookups while the
// declaration order stays stable.
func NewRegistry(tools ...agentports.Tool) *Registry {
	r := &Registry{
		tools:  make([]agentports.Tool, 0, len(tools)),
		byName: make(map[string]agentports.Tool, len(tools)),
	}
	for _, tool := range tools {
		if tool == nil {
			continue
		}
		if _, exists := r.byName[tool.Name()]; !exists {
			r.tools = append(r.tools, tool)
		}
		r.byName[tool.Name()] = tool
	}
	return r
}

// Lookup resolves a tool by name.
func (r *Registry) Lookup(name string) (agentports.Tool, bool) {
	tool, ok := r.byName[name]
	return tool, ok
}

// Definitions returns the declarations advertised to the model, in
// registration order.
func (r *Registry) Definitions() []dial.Tool {
	defs := make([]dial.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, r.byName[tool.Name()].Definition())
	}
	return defs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for _, tool := range r.tools {
		names = append(names, tool.Name())
	}
	return names
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}
