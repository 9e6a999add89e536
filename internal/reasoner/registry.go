// Package reasoner connects the iteration loop to a language model. The
// model reaches the repository only through the tools registered in a
// Registry.
package reasoner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownTool is returned when a tool name is not registered
var ErrUnknownTool = errors.New("unknown tool")

// Param describes one string argument of a tool
type Param struct {
	Name        string
	Description string
	Required    bool
}

// Handler executes a tool call
type Handler func(ctx context.Context, args map[string]string) (string, error)

// Tool is a named capability offered to the model
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// Registry maps tool names to handlers
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates a registry holding tools
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" || t.Handler == nil {
		return fmt.Errorf("tool needs a name and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Tools returns all registered tools sorted by name
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs the named tool after checking required arguments
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]string) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	for _, p := range t.Params {
		if _, present := args[p.Name]; p.Required && !present {
			return "", fmt.Errorf("tool %s: missing argument %q", name, p.Name)
		}
	}
	return t.Handler(ctx, args)
}
