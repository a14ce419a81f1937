package serialmux

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/banshee-data/gesture.auth/internal/monitoring"
)

var logf = monitoring.Component("serial")

// DeviceState holds the latest status values reported by the board, such as
// the acknowledged sample rate or firmware version.
type DeviceState struct {
	mu     sync.Mutex
	values map[string]any
}

func NewDeviceState() *DeviceState {
	return &DeviceState{values: make(map[string]any)}
}

// Apply merges one status line into the state. Status lines are either a
// JSON object or KEY=VALUE.
func (d *DeviceState) Apply(payload string) error {
	payload = strings.TrimSpace(payload)
	update := make(map[string]any)
	if strings.HasPrefix(payload, "{") {
		if err := json.Unmarshal([]byte(payload), &update); err != nil {
			return fmt.Errorf("failed to unmarshal JSON: %v", err)
		}
	} else {
		key, value, ok := strings.Cut(payload, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("not a status line")
		}
		update[strings.ToLower(key)] = strings.TrimSpace(value)
	}

	d.mu.Lock()
	maps.Copy(d.values, update)
	d.mu.Unlock()

	logf("status: %s", payload)
	return nil
}

// Get returns one status value.
func (d *DeviceState) Get(key string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.values[key]
	return v, ok
}

// Snapshot returns a copy of every status value.
func (d *DeviceState) Snapshot() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.values)
}
