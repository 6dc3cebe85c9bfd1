package smartthings

// Device is a SmartThings device as returned by the /devices endpoint.
type Device struct {
	DeviceID         string      `json:"deviceId"`
	Name             string      `json:"name"`
	Label            string      `json:"label"`
	ManufacturerName string      `json:"manufacturerName,omitempty"`
	DeviceTypeName   string      `json:"deviceTypeName,omitempty"`
	LocationID       string      `json:"locationId,omitempty"`
	RoomID           string      `json:"roomId,omitempty"`
	Components       []Component `json:"components"`
}

// DisplayName returns the user-facing name: the label when set, falling
// back to the device name.
func (d Device) DisplayName() string {
	if d.Label != "" {
		return d.Label
	}
	return d.Name
}

// Component is a device component. Most devices expose a single "main"
// component; multi-component devices (e.g. multi-gang switches) expose more.
type Component struct {
	ID           string                `json:"id"`
	Capabilities []CapabilityReference `json:"capabilities"`
	Categories   []Category            `json:"categories,omitempty"`
}

// CapabilityReference names a capability exposed by a component.
type CapabilityReference struct {
	ID      string `json:"id"`
	Version int    `json:"version,omitempty"`
}

// Category is a device category hint (e.g. "Light", "Switch").
type Category struct {
	Name string `json:"name"`
}

// Room is a SmartThings room within a location.
type Room struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

// Scene is a SmartThings scene.
type Scene struct {
	SceneID   string `json:"sceneId"`
	SceneName string `json:"sceneName"`
}

// Mode is a SmartThings location mode (e.g. Home, Away, Night).
type Mode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Name  string `json:"name"`
}

// Location is a SmartThings location.
type Location struct {
	LocationID string `json:"locationId"`
	Name       string `json:"name"`
}

// AttributeValue is a single attribute reading within a status payload.
type AttributeValue struct {
	Value any    `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// Status is a full device status payload: component → capability →
// attribute → value. The canonical data for nearly every device lives
// under the "main" component.
type Status struct {
	Components map[string]map[string]map[string]AttributeValue `json:"components"`
}

// Value returns the attribute value for a capability on the main
// component. The second return is false when any level of the path is
// missing or the value itself is null.
func (s Status) Value(capability, attribute string) (any, bool) {
	attrs, ok := s.Components["main"][capability]
	if !ok {
		return nil, false
	}
	av, ok := attrs[attribute]
	if !ok || av.Value == nil {
		return nil, false
	}
	return av.Value, true
}

// Unit returns the reported unit for a capability attribute on the main
// component, or "" when absent.
func (s Status) Unit(capability, attribute string) string {
	if attrs, ok := s.Components["main"][capability]; ok {
		return attrs[attribute].Unit
	}
	return ""
}

// Command is a single capability command sent to a device. Commands
// execute in the order given when batched in one request.
type Command struct {
	Component  string `json:"component"`
	Capability string `json:"capability"`
	Command    string `json:"command"`
	Arguments  []any  `json:"arguments,omitempty"`
}

// NewCommand builds a command targeting the main component.
func NewCommand(capability, command string, args ...any) Command {
	return Command{
		Component:  "main",
		Capability: capability,
		Command:    command,
		Arguments:  args,
	}
}
