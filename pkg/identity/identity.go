// Package identity manages the device's persisted identity: client_id, device_id,
// and activation state.
package identity

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"
)

// unknownClientPlaceholder mirrors the original installer's sentinel value: a
// client_id equal to this (or empty) is regenerated; any other value is kept
// forever.
const unknownClientPlaceholder = "unknown-client"

// Identity is the device's persisted identity triple plus activation state.
type Identity struct {
	ClientID   string `json:"client_id"`
	DeviceID   string `json:"device_id"`
	Activated  bool   `json:"activated"`
	path       string
}

// Load reads identity from path, creating and persisting a fresh one if the
// file is absent, empty, or carries the placeholder client_id. The device_id
// defaults to the primary network interface's MAC address, falling back to a
// random UUID if none can be found.
func Load(path string) (*Identity, error) {
	id := &Identity{path: path}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) == 0 {
			break
		}
		if jsonErr := json.Unmarshal(data, id); jsonErr != nil {
			return nil, fmt.Errorf("identity: parse %s: %w", path, jsonErr)
		}
	case os.IsNotExist(err):
		// fall through to generation below
	default:
		return nil, fmt.Errorf("identity: read %s: %w", path, err)
	}
	id.path = path

	changed := false
	if id.ClientID == "" || id.ClientID == unknownClientPlaceholder {
		id.ClientID = uuid.NewString()
		changed = true
	}
	if id.DeviceID == "" {
		id.DeviceID = primaryMACOrUUID()
		changed = true
	}

	if changed {
		if err := id.save(); err != nil {
			return nil, err
		}
	}
	return id, nil
}

// SetActivated persists the activation flag.
func (id *Identity) SetActivated(activated bool) error {
	id.Activated = activated
	return id.save()
}

func (id *Identity) save() error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal: %w", err)
	}
	if err := os.WriteFile(id.path, data, 0o600); err != nil {
		return fmt.Errorf("identity: write %s: %w", id.path, err)
	}
	return nil
}

func primaryMACOrUUID() string {
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			if len(iface.HardwareAddr) == 0 {
				continue
			}
			return strings.ToLower(iface.HardwareAddr.String())
		}
	}
	return uuid.NewString()
}
