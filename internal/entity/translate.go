package entity

import (
	"strconv"

	"github.com/nerrad567/stbridge/internal/smartthings"
)

// Translate maps a raw device status payload onto an entity's attribute
// vocabulary and returns the computed values.
//
// The result contains only attributes whose source data was present in
// the payload; attributes with missing or malformed source values are
// simply absent, never zeroed. Translation is pure: it does not mutate
// the entity. Applying the same payload twice yields the same result.
func Translate(e *Entity, status smartthings.Status) map[string]any {
	switch e.Kind {
	case KindLight:
		return translateLight(e, status)
	case KindSwitch:
		return translateSwitch(status)
	case KindSensor:
		return translateSensor(e, status)
	case KindClimate:
		return translateClimate(status)
	case KindCover:
		return translateCover(e, status)
	case KindMediaPlayer:
		return translateMediaPlayer(status)
	case KindButton:
		return translateButton(status)
	default:
		return nil
	}
}

func translateLight(e *Entity, status smartthings.Status) map[string]any {
	updates := make(map[string]any)

	if v, ok := asString(status.Value("switch", "switch")); ok {
		updates[AttrState] = v
	}

	// switchLevel is authoritative for brightness. Fan controllers that
	// expose only discrete fanSpeed steps (0..5) are rescaled to the
	// 0..100 brightness range.
	if level, ok := asFloat(status.Value("switchLevel", "level")); ok {
		updates[AttrBrightness] = clampPercent(level)
	} else if speed, ok := asFloat(status.Value("fanSpeed", "fanSpeed")); ok {
		updates[AttrBrightness] = clampPercent(speed * 20)
	}

	if hue, ok := asFloat(status.Value("colorControl", "hue")); ok {
		updates[AttrHue] = clampPercent(hue)
	}
	if sat, ok := asFloat(status.Value("colorControl", "saturation")); ok {
		updates[AttrSaturation] = clampPercent(sat)
	}
	if ct, ok := asFloat(status.Value("colorTemperature", "colorTemperature")); ok {
		updates[AttrColorTemp] = int(ct)
	}

	return updates
}

func translateSwitch(status smartthings.Status) map[string]any {
	updates := make(map[string]any)
	if v, ok := asString(status.Value("switch", "switch")); ok {
		updates[AttrState] = v
	}
	return updates
}

func translateSensor(e *Entity, status smartthings.Status) map[string]any {
	updates := make(map[string]any)

	if e.DeviceClass == lockSensorClass.Class {
		if v, ok := asString(status.Value("lock", "lock")); ok {
			updates[AttrValue] = lockDisplay(v)
		}
	} else {
		for _, sc := range sensorClasses {
			if sc.Class != e.DeviceClass {
				continue
			}
			if raw, ok := status.Value(sc.Capability, sc.Attribute); ok {
				if f, isNum := asFloat(raw, true); isNum {
					updates[AttrValue] = f
				} else if s, isStr := asString(raw, true); isStr {
					updates[AttrValue] = s
				}
			}
			break
		}
	}

	// A reported value marks the sensor itself as live.
	if _, ok := updates[AttrValue]; ok {
		updates[AttrState] = "on"
	}

	return updates
}

// lockDisplay renders lock attribute values for sensor display.
func lockDisplay(v string) string {
	switch v {
	case "locked":
		return "Locked"
	case "unlocked":
		return "Unlocked"
	default:
		return v
	}
}

func translateClimate(status smartthings.Status) map[string]any {
	updates := make(map[string]any)

	if temp, ok := asFloat(status.Value("temperatureMeasurement", "temperature")); ok {
		updates[AttrCurrentTemp] = temp
	}

	// Heating setpoint wins when both setpoints report values.
	if heat, ok := asFloat(status.Value("thermostatHeatingSetpoint", "heatingSetpoint")); ok {
		updates[AttrTargetTemp] = heat
	} else if cool, ok := asFloat(status.Value("thermostatCoolingSetpoint", "coolingSetpoint")); ok {
		updates[AttrTargetTemp] = cool
	}

	if mode, ok := asString(status.Value("thermostatMode", "thermostatMode")); ok {
		updates[AttrHVACMode] = normalizeHVACMode(mode)
	} else if mode, ok := asString(status.Value("airConditionerMode", "airConditionerMode")); ok {
		updates[AttrHVACMode] = normalizeHVACMode(mode)
	}

	if fan, ok := asString(status.Value("thermostatFanMode", "thermostatFanMode")); ok {
		updates[AttrFanMode] = fan
	}

	if v, ok := asString(status.Value("switch", "switch")); ok {
		updates[AttrState] = v
	} else if mode, ok := updates[AttrHVACMode].(string); ok {
		updates[AttrState] = mode
	}

	return updates
}

// normalizeHVACMode reduces the open-ended cloud mode vocabulary to the
// four modes the host platform understands. Vendor-specific modes
// ("emergency heat", "dryair", "eco") collapse to auto rather than
// leaking through.
func normalizeHVACMode(mode string) string {
	switch mode {
	case "off", "heat", "cool", "auto":
		return mode
	default:
		return "auto"
	}
}

func translateCover(e *Entity, status smartthings.Status) map[string]any {
	updates := make(map[string]any)

	// Door state outranks shade state when a device reports both.
	if v, ok := asString(status.Value("doorControl", "door")); ok {
		updates[AttrState] = v
	} else if v, ok := asString(status.Value("garageDoorControl", "door")); ok {
		updates[AttrState] = v
	} else if v, ok := asString(status.Value("windowShade", "windowShade")); ok {
		if v == "partially open" {
			v = "open"
		}
		updates[AttrState] = v
	}

	if pos, ok := asFloat(status.Value("windowShadeLevel", "shadeLevel")); ok {
		updates[AttrPosition] = clampPercent(pos)
	} else if pos, ok := asFloat(status.Value("switchLevel", "level")); ok {
		updates[AttrPosition] = clampPercent(pos)
	}

	return updates
}

func translateMediaPlayer(status smartthings.Status) map[string]any {
	updates := make(map[string]any)

	// Playback state overrides the bare power state when both report.
	playback, hasPlayback := asString(status.Value("mediaPlayback", "playbackStatus"))
	power, hasPower := asString(status.Value("switch", "switch"))

	switch {
	case hasPlayback && (playback == "playing" || playback == "paused"):
		updates[AttrState] = playback
	case hasPlayback && playback == "stopped":
		// Stopped still means powered and responsive, not off.
		updates[AttrState] = "on"
	case hasPower:
		updates[AttrState] = power
	case hasPlayback:
		updates[AttrState] = playback
	}

	if vol, ok := asFloat(status.Value("audioVolume", "volume")); ok {
		updates[AttrVolume] = clampPercent(vol)
	}
	if mute, ok := asString(status.Value("audioVolume", "mute")); ok {
		updates[AttrMuted] = mute == "muted"
	}
	if src, ok := asString(status.Value("mediaInputSource", "inputSource")); ok {
		updates[AttrSource] = src
	}

	return updates
}

// translateButton pins the state to "available". Button presses surface
// as momentary events, not as a persistent state, so the raw button
// attribute ("pushed", "held") never becomes the entity state.
func translateButton(smartthings.Status) map[string]any {
	return map[string]any{AttrState: StateAvailable}
}

// asFloat coerces a raw attribute value to float64. Accepts native
// numbers and numeric strings; anything else fails the coercion. The
// signature lines up with Status.Value so calls chain directly:
// asFloat(status.Value("switchLevel", "level")).
func asFloat(raw any, present bool) (float64, bool) {
	if !present {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// asString coerces a raw attribute value to a non-empty string.
func asString(raw any, present bool) (string, bool) {
	if !present {
		return "", false
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// clampPercent bounds a value to the inclusive [0, 100] range and
// truncates to an integer.
func clampPercent(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}
