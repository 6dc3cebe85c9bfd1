package entity

// Capability groups used by the resolver. A device's primary kind is the
// first rule whose trigger matches, evaluated in fixed priority order:
// media player, climate, cover, light, lock (rendered as a sensor),
// button, switch. Sensor sub-entities are evaluated independently of the
// primary kind.
var (
	mediaPlayerTriggers = []string{"mediaPlayback", "audioVolume", "tvChannel"}

	climateTriggers = []string{
		"thermostat",
		"thermostatMode",
		"thermostatHeatingSetpoint",
		"thermostatCoolingSetpoint",
		"airConditionerMode",
	}

	coverTriggers = []string{"windowShade", "doorControl", "garageDoorControl"}

	// A bare "switch" capability is deliberately not a light trigger:
	// nearly every actuator carries it. Only level or colour control
	// marks a device as a light.
	lightTriggers = []string{"switchLevel", "colorControl", "colorTemperature"}

	buttonTriggers = []string{"button", "momentary"}

	// lightExclusions prevents devices that dim or report levels for
	// other reasons (shades, AV gear, thermostats with displays,
	// sensor-heavy devices) from rendering as lights.
	lightExclusions = []string{
		"mediaPlayback", "audioVolume", "tvChannel",
		"thermostat", "thermostatMode",
		"thermostatHeatingSetpoint", "thermostatCoolingSetpoint",
		"airConditionerMode",
		"windowShade", "doorControl", "garageDoorControl",
		"contactSensor", "motionSensor",
		"button", "lock",
	}
)

// SensorClass describes one detectable sensor subtype.
type SensorClass struct {
	Class      string
	Capability string
	Attribute  string
	Unit       string
}

// sensorClasses is evaluated in fixed order so sub-entity ordering is
// deterministic across runs.
var sensorClasses = []SensorClass{
	{Class: "temperature", Capability: "temperatureMeasurement", Attribute: "temperature", Unit: "°C"},
	{Class: "humidity", Capability: "relativeHumidityMeasurement", Attribute: "humidity", Unit: "%"},
	{Class: "motion", Capability: "motionSensor", Attribute: "motion"},
	{Class: "contact", Capability: "contactSensor", Attribute: "contact"},
	{Class: "battery", Capability: "battery", Attribute: "battery", Unit: "%"},
	{Class: "power", Capability: "powerMeter", Attribute: "power", Unit: "W"},
	{Class: "energy", Capability: "energyMeter", Attribute: "energy", Unit: "kWh"},
	{Class: "illuminance", Capability: "illuminanceMeasurement", Attribute: "illuminance", Unit: "lux"},
	{Class: "presence", Capability: "presenceSensor", Attribute: "presence"},
}

// lockSensorClass is the lock rendered as a sensor reporting
// Locked/Unlocked. Locks deliberately do not map to an actuator kind.
var lockSensorClass = SensorClass{Class: "lock", Capability: "lock", Attribute: "lock"}

// ResolvePrimary determines the primary entity kind for a capability
// set. Returns false when no rule matches; such devices may still yield
// sensor sub-entities.
func ResolvePrimary(caps *CapabilitySet) (Kind, bool) {
	switch {
	case caps.HasAny(mediaPlayerTriggers...):
		return KindMediaPlayer, true

	case caps.HasAny(climateTriggers...):
		return KindClimate, true

	case caps.HasAny(coverTriggers...):
		return KindCover, true

	case caps.HasAny(lightTriggers...) && !caps.HasAny(lightExclusions...):
		return KindLight, true

	case caps.Has("lock"):
		return KindSensor, true

	case caps.HasAny(buttonTriggers...):
		return KindButton, true

	// Pure switches only: a device carrying level or colour control
	// alongside "switch" was either matched above or excluded from the
	// light rule, and must not fall back to a bare switch.
	case caps.Has("switch") && !caps.HasAny(lightTriggers...):
		return KindSwitch, true

	default:
		return "", false
	}
}

// ResolveSensors returns the sensor classes a capability set supports,
// in fixed evaluation order. Each class is judged independently; a
// device can be both a light and a power sensor.
func ResolveSensors(caps *CapabilitySet) []SensorClass {
	var matched []SensorClass
	for _, sc := range sensorClasses {
		if caps.Has(sc.Capability) {
			matched = append(matched, sc)
		}
	}
	return matched
}
