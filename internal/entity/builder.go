package entity

import (
	"fmt"
	"strings"

	"github.com/nerrad567/stbridge/internal/infrastructure/config"
	"github.com/nerrad567/stbridge/internal/smartthings"
)

// Build derives the entities for a single device: at most one primary
// entity plus one sensor sub-entity per detected sensor class, filtered
// by the per-category include flags.
//
// Entity IDs are deterministic ("st_<kind>_<deviceID>", sensors with a
// class suffix) so rebuilt entities always collide with their previous
// incarnation rather than duplicating it.
func Build(device smartthings.Device, roomName string, include config.EntitiesConfig) []*Entity {
	caps := ExtractCapabilities(device)
	name := device.DisplayName()

	var entities []*Entity

	kind, ok := ResolvePrimary(caps)
	if ok {
		switch {
		case kind == KindSensor:
			// Lock rendered as a sensor. Gated with the other sensors.
			if include.IncludeSensors {
				entities = append(entities, buildSensor(device, name, roomName, caps, lockSensorClass))
			}
		case includeKind(kind, include):
			entities = append(entities, buildPrimary(device, kind, name, roomName, caps))
		}
	}

	if include.IncludeSensors {
		for _, sc := range ResolveSensors(caps) {
			entities = append(entities, buildSensor(device, name, roomName, caps, sc))
		}
	}

	return entities
}

func includeKind(kind Kind, include config.EntitiesConfig) bool {
	switch kind {
	case KindLight:
		return include.IncludeLights
	case KindSwitch:
		return include.IncludeSwitches
	case KindClimate:
		return include.IncludeClimate
	case KindCover:
		return include.IncludeCovers
	case KindMediaPlayer:
		return include.IncludeMediaPlayers
	case KindButton:
		return include.IncludeButtons
	case KindSensor:
		return include.IncludeSensors
	default:
		return false
	}
}

func buildPrimary(device smartthings.Device, kind Kind, name, roomName string, caps *CapabilitySet) *Entity {
	e := &Entity{
		ID:         fmt.Sprintf("st_%s_%s", kind, device.DeviceID),
		DeviceID:   device.DeviceID,
		Kind:       kind,
		Name:       name,
		Area:       roomName,
		Attributes: map[string]any{AttrState: StateUnknown},
		Caps:       caps,
	}

	switch kind {
	case KindLight:
		e.Features = []string{FeatureOnOff, FeatureToggle}
		if caps.HasAny("switchLevel", "fanSpeed") {
			e.Features = append(e.Features, FeatureDim)
			e.Attributes[AttrBrightness] = nil
		}
		if caps.Has("colorControl") {
			e.Features = append(e.Features, FeatureColor)
			e.Attributes[AttrHue] = nil
			e.Attributes[AttrSaturation] = nil
		}
		if caps.Has("colorTemperature") {
			e.Features = append(e.Features, FeatureColorTemp)
			e.Attributes[AttrColorTemp] = nil
		}

	case KindSwitch:
		e.Features = []string{FeatureOnOff, FeatureToggle}

	case KindClimate:
		if caps.Has("switch") {
			e.Features = append(e.Features, FeatureOnOff)
		}
		if caps.Has("temperatureMeasurement") {
			e.Features = append(e.Features, FeatureCurrTemp)
			e.Attributes[AttrCurrentTemp] = nil
		}
		if caps.HasAny("thermostatHeatingSetpoint", "thermostatCoolingSetpoint", "thermostat") {
			e.Features = append(e.Features, FeatureTargTemp)
			e.Attributes[AttrTargetTemp] = nil
		}
		if caps.HasAny("thermostatMode", "airConditionerMode") {
			e.Features = append(e.Features, FeatureHVACMode)
			e.Attributes[AttrHVACMode] = nil
		}
		if caps.HasAny("thermostatFanMode", "fan") {
			e.Features = append(e.Features, FeatureFan)
			e.Attributes[AttrFanMode] = nil
		}

	case KindCover:
		e.DeviceClass = coverClass(caps)
		e.Features = []string{FeatureOpen, FeatureClose}
		if caps.Has("windowShade") {
			e.Features = append(e.Features, FeatureStop)
		}
		if caps.HasAny("windowShadeLevel", "switchLevel") {
			e.Features = append(e.Features, FeaturePosition)
			e.Attributes[AttrPosition] = nil
		}

	case KindMediaPlayer:
		if caps.Has("switch") {
			e.Features = append(e.Features, FeatureOnOff, FeatureToggle)
		}
		if caps.Has("audioVolume") {
			// The mute reading lives on audioVolume; a separate audioMute
			// capability only changes which command toggles it.
			e.Features = append(e.Features, FeatureVolume, FeatureMuteTgl)
			e.Attributes[AttrVolume] = nil
			e.Attributes[AttrMuted] = nil
		}
		if caps.Has("mediaPlayback") {
			e.Features = append(e.Features, FeaturePlayPause, FeatureStop)
		}
		if caps.Has("mediaInputSource") {
			e.Features = append(e.Features, FeatureSource)
			e.Attributes[AttrSource] = nil
		}
		if caps.Has("tvChannel") {
			e.Features = append(e.Features, FeatureChannel)
		}

	case KindButton:
		e.Features = []string{FeaturePress}
		e.Attributes[AttrState] = StateAvailable
	}

	return e
}

// coverClass infers the cover device class from the controlling
// capability. Door control outranks shade behaviour when both appear.
func coverClass(caps *CapabilitySet) string {
	switch {
	case caps.Has("garageDoorControl"):
		return "garage"
	case caps.Has("doorControl"):
		return "door"
	default:
		return "shade"
	}
}

func buildSensor(device smartthings.Device, name, roomName string, caps *CapabilitySet, sc SensorClass) *Entity {
	return &Entity{
		ID:          fmt.Sprintf("st_sensor_%s_%s", device.DeviceID, sc.Class),
		DeviceID:    device.DeviceID,
		Kind:        KindSensor,
		Name:        fmt.Sprintf("%s %s", name, titleCase(sc.Class)),
		Area:        roomName,
		DeviceClass: sc.Class,
		Unit:        sc.Unit,
		Attributes: map[string]any{
			AttrState: StateUnknown,
			AttrValue: nil,
		},
		Caps: caps,
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
