package entity

import (
	"fmt"
	"math"

	"github.com/nerrad567/stbridge/internal/smartthings"
)

// CacheReader exposes last-known device state to toggle-style commands.
// Satisfied by *smartthings.Client.
type CacheReader interface {
	CachedStatus(deviceID string) (smartthings.Status, bool)
}

// MapCommand translates a normalized entity command into the ordered
// capability calls that realise it.
//
// Unknown commands return ErrNotImplemented without consulting the
// cache; the caller must not generate network traffic for them. Toggle
// commands branch on cached state: with no cached value the state is
// treated as off/unmuted/paused and the activating call is issued.
func MapCommand(e *Entity, cmdID string, params map[string]any, cache CacheReader) ([]smartthings.Command, error) {
	switch e.Kind {
	case KindLight:
		return mapLightCommand(e, cmdID, params, cache)
	case KindSwitch:
		return mapSwitchCommand(e, cmdID, cache)
	case KindClimate:
		return mapClimateCommand(e, cmdID, params)
	case KindCover:
		return mapCoverCommand(e, cmdID, params)
	case KindMediaPlayer:
		return mapMediaPlayerCommand(e, cmdID, params, cache)
	case KindButton:
		return mapButtonCommand(e, cmdID)
	default:
		return nil, fmt.Errorf("%w: %q on %s", ErrNotImplemented, cmdID, e.Kind)
	}
}

func mapLightCommand(e *Entity, cmdID string, params map[string]any, cache CacheReader) ([]smartthings.Command, error) {
	switch cmdID {
	case "on":
		return []smartthings.Command{smartthings.NewCommand("switch", "on")}, nil

	case "off":
		return []smartthings.Command{smartthings.NewCommand("switch", "off")}, nil

	case "toggle":
		return toggleSwitch(e, cache), nil

	case "brightness":
		level, err := percentParam(params, "brightness")
		if err != nil {
			return nil, err
		}
		if e.Caps.Has("switchLevel") {
			return []smartthings.Command{
				smartthings.NewCommand("switchLevel", "setLevel", level),
			}, nil
		}
		if e.Caps.Has("fanSpeed") {
			// Inverse of the fanSpeed×20 display rescale.
			speed := int(math.Round(float64(level) / 20))
			return []smartthings.Command{
				smartthings.NewCommand("fanSpeed", "setFanSpeed", speed),
			}, nil
		}
		return nil, fmt.Errorf("%w: brightness on non-dimmable light", ErrNotImplemented)

	case "color":
		if !e.Caps.Has("colorControl") {
			return nil, fmt.Errorf("%w: color on light without colorControl", ErrNotImplemented)
		}
		hue, err := percentParam(params, "hue")
		if err != nil {
			return nil, err
		}
		sat, err := percentParam(params, "saturation")
		if err != nil {
			return nil, err
		}
		// Both legs travel in one request; the cloud executes the array
		// in order, hue before saturation.
		return []smartthings.Command{
			smartthings.NewCommand("colorControl", "setHue", hue),
			smartthings.NewCommand("colorControl", "setSaturation", sat),
		}, nil

	case "color_temperature":
		if !e.Caps.Has("colorTemperature") {
			return nil, fmt.Errorf("%w: color_temperature unsupported", ErrNotImplemented)
		}
		kelvin, ok := asFloat(params["color_temperature"], params["color_temperature"] != nil)
		if !ok || kelvin <= 0 {
			return nil, fmt.Errorf("%w: color_temperature must be a positive number", ErrInvalidArgument)
		}
		return []smartthings.Command{
			smartthings.NewCommand("colorTemperature", "setColorTemperature", int(kelvin)),
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q on light", ErrNotImplemented, cmdID)
	}
}

func mapSwitchCommand(e *Entity, cmdID string, cache CacheReader) ([]smartthings.Command, error) {
	switch cmdID {
	case "on":
		return []smartthings.Command{smartthings.NewCommand("switch", "on")}, nil
	case "off":
		return []smartthings.Command{smartthings.NewCommand("switch", "off")}, nil
	case "toggle":
		return toggleSwitch(e, cache), nil
	default:
		return nil, fmt.Errorf("%w: %q on switch", ErrNotImplemented, cmdID)
	}
}

// toggleSwitch inverts the last-known switch state. No cached status is
// treated as off, so the first toggle after startup turns the device on.
func toggleSwitch(e *Entity, cache CacheReader) []smartthings.Command {
	next := "on"
	if status, ok := cache.CachedStatus(e.DeviceID); ok {
		if v, ok := asString(status.Value("switch", "switch")); ok && v == "on" {
			next = "off"
		}
	}
	return []smartthings.Command{smartthings.NewCommand("switch", next)}
}

func mapClimateCommand(e *Entity, cmdID string, params map[string]any) ([]smartthings.Command, error) {
	switch cmdID {
	case "on":
		return []smartthings.Command{smartthings.NewCommand("switch", "on")}, nil

	case "off":
		return []smartthings.Command{smartthings.NewCommand("switch", "off")}, nil

	case "target_temperature":
		temp, ok := asFloat(params["temperature"], params["temperature"] != nil)
		if !ok {
			return nil, fmt.Errorf("%w: temperature must be a number", ErrInvalidArgument)
		}
		// Mirrors translation precedence: heating setpoint when the
		// capability exists, cooling only otherwise.
		if e.Caps.Has("thermostatHeatingSetpoint") {
			return []smartthings.Command{
				smartthings.NewCommand("thermostatHeatingSetpoint", "setHeatingSetpoint", temp),
			}, nil
		}
		if e.Caps.Has("thermostatCoolingSetpoint") {
			return []smartthings.Command{
				smartthings.NewCommand("thermostatCoolingSetpoint", "setCoolingSetpoint", temp),
			}, nil
		}
		return nil, fmt.Errorf("%w: no settable setpoint", ErrNotImplemented)

	case "hvac_mode":
		mode, ok := asString(params["mode"], params["mode"] != nil)
		if !ok {
			return nil, fmt.Errorf("%w: mode must be a non-empty string", ErrInvalidArgument)
		}
		if e.Caps.Has("thermostatMode") {
			return []smartthings.Command{
				smartthings.NewCommand("thermostatMode", "setThermostatMode", mode),
			}, nil
		}
		if e.Caps.Has("airConditionerMode") {
			return []smartthings.Command{
				smartthings.NewCommand("airConditionerMode", "setAirConditionerMode", mode),
			}, nil
		}
		return nil, fmt.Errorf("%w: no settable mode", ErrNotImplemented)

	case "fan_mode":
		mode, ok := asString(params["mode"], params["mode"] != nil)
		if !ok {
			return nil, fmt.Errorf("%w: mode must be a non-empty string", ErrInvalidArgument)
		}
		if e.Caps.Has("thermostatFanMode") {
			return []smartthings.Command{
				smartthings.NewCommand("thermostatFanMode", "setThermostatFanMode", mode),
			}, nil
		}
		if e.Caps.Has("fan") {
			return []smartthings.Command{
				smartthings.NewCommand("fan", "setFanMode", mode),
			}, nil
		}
		return nil, fmt.Errorf("%w: no settable fan mode", ErrNotImplemented)

	default:
		return nil, fmt.Errorf("%w: %q on climate", ErrNotImplemented, cmdID)
	}
}

func mapCoverCommand(e *Entity, cmdID string, params map[string]any) ([]smartthings.Command, error) {
	switch cmdID {
	case "open", "close":
		// Door control outranks shade control, matching translation.
		switch {
		case e.Caps.Has("doorControl"):
			return []smartthings.Command{smartthings.NewCommand("doorControl", cmdID)}, nil
		case e.Caps.Has("garageDoorControl"):
			return []smartthings.Command{smartthings.NewCommand("garageDoorControl", cmdID)}, nil
		case e.Caps.Has("windowShade"):
			return []smartthings.Command{smartthings.NewCommand("windowShade", cmdID)}, nil
		}
		return nil, fmt.Errorf("%w: %q on cover without control capability", ErrNotImplemented, cmdID)

	case "stop":
		if e.Caps.Has("windowShade") {
			return []smartthings.Command{smartthings.NewCommand("windowShade", "pause")}, nil
		}
		return nil, fmt.Errorf("%w: stop on non-shade cover", ErrNotImplemented)

	case "position":
		pos, err := percentParam(params, "position")
		if err != nil {
			return nil, err
		}
		if e.Caps.Has("windowShadeLevel") {
			return []smartthings.Command{
				smartthings.NewCommand("windowShadeLevel", "setShadeLevel", pos),
			}, nil
		}
		if e.Caps.Has("switchLevel") {
			return []smartthings.Command{
				smartthings.NewCommand("switchLevel", "setLevel", pos),
			}, nil
		}
		return nil, fmt.Errorf("%w: position on cover without level capability", ErrNotImplemented)

	default:
		return nil, fmt.Errorf("%w: %q on cover", ErrNotImplemented, cmdID)
	}
}

func mapMediaPlayerCommand(e *Entity, cmdID string, params map[string]any, cache CacheReader) ([]smartthings.Command, error) {
	switch cmdID {
	case "on":
		return []smartthings.Command{smartthings.NewCommand("switch", "on")}, nil

	case "off":
		return []smartthings.Command{smartthings.NewCommand("switch", "off")}, nil

	case "toggle":
		return toggleSwitch(e, cache), nil

	case "volume":
		vol, err := percentParam(params, "volume")
		if err != nil {
			return nil, err
		}
		return []smartthings.Command{
			smartthings.NewCommand("audioVolume", "setVolume", vol),
		}, nil

	case "volume_up":
		return []smartthings.Command{smartthings.NewCommand("audioVolume", "volumeUp")}, nil

	case "volume_down":
		return []smartthings.Command{smartthings.NewCommand("audioVolume", "volumeDown")}, nil

	case "mute_toggle":
		// The reading always lives on audioVolume; the dedicated audioMute
		// capability is preferred for the write when the device has it.
		// No cached mute state is treated as unmuted.
		next := "mute"
		if status, ok := cache.CachedStatus(e.DeviceID); ok {
			if v, ok := asString(status.Value("audioVolume", "mute")); ok && v == "muted" {
				next = "unmute"
			}
		}
		capability := "audioVolume"
		if e.Caps.Has("audioMute") {
			capability = "audioMute"
		}
		return []smartthings.Command{smartthings.NewCommand(capability, next)}, nil

	case "play_pause":
		// No cached playback state is treated as paused.
		next := "play"
		if status, ok := cache.CachedStatus(e.DeviceID); ok {
			if v, ok := asString(status.Value("mediaPlayback", "playbackStatus")); ok && v == "playing" {
				next = "pause"
			}
		}
		return []smartthings.Command{smartthings.NewCommand("mediaPlayback", next)}, nil

	case "stop":
		if !e.Caps.Has("mediaPlayback") {
			return nil, fmt.Errorf("%w: stop without mediaPlayback", ErrNotImplemented)
		}
		return []smartthings.Command{smartthings.NewCommand("mediaPlayback", "stop")}, nil

	case "select_source":
		if !e.Caps.Has("mediaInputSource") {
			return nil, fmt.Errorf("%w: select_source without mediaInputSource", ErrNotImplemented)
		}
		source, ok := asString(params["source"], params["source"] != nil)
		if !ok {
			return nil, fmt.Errorf("%w: source must be a non-empty string", ErrInvalidArgument)
		}
		return []smartthings.Command{
			smartthings.NewCommand("mediaInputSource", "setInputSource", source),
		}, nil

	case "channel_up":
		if !e.Caps.Has("tvChannel") {
			return nil, fmt.Errorf("%w: channel_up without tvChannel", ErrNotImplemented)
		}
		return []smartthings.Command{smartthings.NewCommand("tvChannel", "channelUp")}, nil

	case "channel_down":
		if !e.Caps.Has("tvChannel") {
			return nil, fmt.Errorf("%w: channel_down without tvChannel", ErrNotImplemented)
		}
		return []smartthings.Command{smartthings.NewCommand("tvChannel", "channelDown")}, nil

	default:
		return nil, fmt.Errorf("%w: %q on media player", ErrNotImplemented, cmdID)
	}
}

func mapButtonCommand(e *Entity, cmdID string) ([]smartthings.Command, error) {
	if cmdID != "press" {
		return nil, fmt.Errorf("%w: %q on button", ErrNotImplemented, cmdID)
	}
	if e.Caps.Has("momentary") {
		return []smartthings.Command{smartthings.NewCommand("momentary", "push")}, nil
	}
	return []smartthings.Command{smartthings.NewCommand("button", "push")}, nil
}

// percentParam extracts a numeric parameter and clamps it to [0, 100].
func percentParam(params map[string]any, key string) (int, error) {
	raw, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q parameter", ErrInvalidArgument, key)
	}
	f, ok := asFloat(raw, true)
	if !ok {
		return 0, fmt.Errorf("%w: %q must be a number", ErrInvalidArgument, key)
	}
	return clampPercent(f), nil
}
