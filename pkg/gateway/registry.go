// Package gateway implements the external tool registry and JSON-RPC
// dispatch that exposes tools to the cloud session.
package gateway

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"voxcore/pkg/config"
)

// TransportKind identifies which executor a tool dispatches through.
type TransportKind int

const (
	TransportSubprocess TransportKind = iota
	TransportHTTP
	TransportTCP
)

// Mode is the tool's execution mode.
type Mode int

const (
	ModeSync Mode = iota
	ModeBackground
)

// Descriptor fully describes one registered tool.
type Descriptor struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema

	Transport TransportKind

	// Subprocess
	Executable string
	Args       []string

	// HTTP
	URL    string
	Method string

	// TCP
	Address string

	Mode      Mode
	TimeoutMs int
	Headers   map[string]string
}

// Registry is an immutable, name-keyed set of tool descriptors.
type Registry struct {
	tools map[string]*Descriptor
	order []string
}

// NewRegistry builds a Registry from configured tool entries.
func NewRegistry(entries []config.ToolEntry) (*Registry, error) {
	reg := &Registry{tools: make(map[string]*Descriptor, len(entries))}

	for _, e := range entries {
		if _, exists := reg.tools[e.Name]; exists {
			return nil, fmt.Errorf("gateway: duplicate tool name %q", e.Name)
		}

		d := &Descriptor{
			Name:        e.Name,
			Description: e.Description,
			Executable:  e.Executable,
			Args:        e.Args,
			URL:         e.URL,
			Method:      e.Method,
			Address:     e.Address,
			TimeoutMs:   e.TimeoutMs,
			Headers:     e.Headers,
		}
		if d.TimeoutMs <= 0 {
			d.TimeoutMs = 5000
		}
		if d.Method == "" {
			d.Method = "POST"
		}

		switch e.Transport {
		case "subprocess":
			d.Transport = TransportSubprocess
		case "http":
			d.Transport = TransportHTTP
		case "tcp":
			d.Transport = TransportTCP
		default:
			return nil, fmt.Errorf("gateway: tool %q has unknown transport %q", e.Name, e.Transport)
		}

		switch e.Mode {
		case "", "sync":
			d.Mode = ModeSync
		case "background":
			d.Mode = ModeBackground
		default:
			return nil, fmt.Errorf("gateway: tool %q has unknown mode %q", e.Name, e.Mode)
		}

		if len(e.InputSchema) > 0 {
			schema, err := schemaFromMap(e.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("gateway: tool %q input_schema: %w", e.Name, err)
			}
			d.InputSchema = schema
		}

		reg.tools[e.Name] = d
		reg.order = append(reg.order, e.Name)
	}

	return reg, nil
}

// Lookup returns the descriptor for name, or false if unregistered.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.tools[name]
	return d, ok
}

// List returns all descriptors in registration order.
func (r *Registry) List() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

func schemaFromMap(m map[string]any) (*jsonschema.Schema, error) {
	schema := &jsonschema.Schema{}
	if t, ok := m["type"].(string); ok {
		schema.Type = t
	}
	if props, ok := m["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*jsonschema.Schema, len(props))
		for k, v := range props {
			sub, ok := v.(map[string]any)
			if !ok {
				continue
			}
			subSchema, err := schemaFromMap(sub)
			if err != nil {
				return nil, err
			}
			schema.Properties[k] = subSchema
		}
	}
	if req, ok := m["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema, nil
}
