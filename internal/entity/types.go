package entity

// Kind is the entity category an entity renders as on the host platform.
//
// The kind is assigned once at build time by the resolver and drives
// every downstream decision: which attributes the translator produces,
// which commands the dispatcher accepts. Code switches on Kind; nothing
// downstream re-inspects capabilities to guess what an entity is.
type Kind string

const (
	KindLight       Kind = "light"
	KindSwitch      Kind = "switch"
	KindSensor      Kind = "sensor"
	KindClimate     Kind = "climate"
	KindCover       Kind = "cover"
	KindMediaPlayer Kind = "media_player"
	KindButton      Kind = "button"
)

// StateUnknown is the initial value of every state attribute until the
// first status translation arrives.
const StateUnknown = "unknown"

// StateAvailable is the fixed state of button entities: buttons are
// stateless triggers, so "available" is all they ever report.
const StateAvailable = "available"

// Attribute names shared across entity kinds.
const (
	AttrState       = "state"
	AttrBrightness  = "brightness"
	AttrHue         = "hue"
	AttrSaturation  = "saturation"
	AttrColorTemp   = "color_temperature"
	AttrValue       = "value"
	AttrUnit        = "unit"
	AttrCurrentTemp = "current_temperature"
	AttrTargetTemp  = "target_temperature"
	AttrHVACMode    = "hvac_mode"
	AttrPosition    = "position"
	AttrVolume      = "volume"
	AttrMuted       = "muted"
	AttrFanMode     = "fan_mode"
	AttrSource      = "source"
)

// Feature names advertised per entity.
const (
	FeatureOnOff     = "on_off"
	FeatureToggle    = "toggle"
	FeatureDim       = "dim"
	FeatureColor     = "color"
	FeatureColorTemp = "color_temperature"
	FeatureOpen      = "open"
	FeatureClose     = "close"
	FeatureStop      = "stop"
	FeaturePosition  = "position"
	FeatureVolume    = "volume"
	FeatureMuteTgl   = "mute_toggle"
	FeaturePlayPause = "play_pause"
	FeatureChannel   = "channel"
	FeaturePress     = "press"
	FeatureCurrTemp  = "current_temperature"
	FeatureTargTemp  = "target_temperature"
	FeatureHVACMode  = "hvac_mode"
	FeatureFan       = "fan"
	FeatureSource    = "select_source"
)

// Entity is a host-platform entity derived from a SmartThings device.
//
// One device produces at most one primary entity plus zero or more
// sensor sub-entities (one per detected sensor class). The capability
// set is retained because translation and command mapping still need to
// know which capabilities actually back each attribute.
type Entity struct {
	// ID is the stable entity identifier: "st_<kind>_<deviceID>", with a
	// class suffix for sensor sub-entities.
	ID string

	// DeviceID is the backing SmartThings device.
	DeviceID string

	Kind Kind

	// Name is the user-facing name, suffixed with the sensor class for
	// sub-entities ("Porch Door Battery").
	Name string

	// Area is the room name, when the device is assigned to a room.
	Area string

	// DeviceClass refines the kind: sensor class (temperature, battery,
	// lock, ...), cover class (door, garage, shade), or media class.
	DeviceClass string

	// Unit is the display unit for sensor entities ("°C", "%", "W", ...).
	Unit string

	Features []string

	// Attributes holds the last translated state. Initialised with
	// StateUnknown / nil values until the first poll lands.
	Attributes map[string]any

	// Caps is the device capability set captured at build time.
	Caps *CapabilitySet
}

// HasFeature reports whether the entity advertises a feature.
func (e *Entity) HasFeature(name string) bool {
	for _, f := range e.Features {
		if f == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}

	clone := *e
	clone.Features = append([]string(nil), e.Features...)
	clone.Attributes = make(map[string]any, len(e.Attributes))
	for k, v := range e.Attributes {
		clone.Attributes[k] = v
	}
	if e.Caps != nil {
		clone.Caps = NewCapabilitySet(e.Caps.List()...)
	}
	return &clone
}
