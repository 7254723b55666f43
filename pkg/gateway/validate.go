package gateway

import (
	"encoding/json"
	"fmt"
)

// validateArgs structurally validates a tool-call's arguments against its
// configured input schema. A tool with no schema accepts anything.
func validateArgs(d *Descriptor, args json.RawMessage) error {
	if d.InputSchema == nil {
		return nil
	}

	resolved, err := d.InputSchema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("gateway: resolve schema for %q: %w", d.Name, err)
	}

	var instance any
	if err := json.Unmarshal(args, &instance); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("arguments do not match schema: %w", err)
	}
	return nil
}
