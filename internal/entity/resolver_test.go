package entity

import (
	"testing"
)

func TestResolvePrimary(t *testing.T) {
	tests := []struct {
		name     string
		caps     []string
		wantKind Kind
		wantOK   bool
	}{
		{
			name:     "plain switch",
			caps:     []string{"switch"},
			wantKind: KindSwitch,
			wantOK:   true,
		},
		{
			name:     "dimmer is a light",
			caps:     []string{"switch", "switchLevel"},
			wantKind: KindLight,
			wantOK:   true,
		},
		{
			name:     "color bulb is a light",
			caps:     []string{"switch", "switchLevel", "colorControl", "colorTemperature"},
			wantKind: KindLight,
			wantOK:   true,
		},
		{
			name:     "bare switch is never a light",
			caps:     []string{"switch", "powerMeter"},
			wantKind: KindSwitch,
			wantOK:   true,
		},
		{
			name:     "thermostat with switch is climate, not switch",
			caps:     []string{"switch", "thermostatMode", "thermostatHeatingSetpoint", "temperatureMeasurement"},
			wantKind: KindClimate,
			wantOK:   true,
		},
		{
			name:     "air conditioner is climate",
			caps:     []string{"switch", "airConditionerMode", "temperatureMeasurement"},
			wantKind: KindClimate,
			wantOK:   true,
		},
		{
			name:     "shade with level is a cover, not a light",
			caps:     []string{"windowShade", "switchLevel", "windowShadeLevel"},
			wantKind: KindCover,
			wantOK:   true,
		},
		{
			name:     "garage door is a cover",
			caps:     []string{"garageDoorControl", "contactSensor"},
			wantKind: KindCover,
			wantOK:   true,
		},
		{
			name:     "TV is a media player despite switch and level",
			caps:     []string{"switch", "switchLevel", "audioVolume", "mediaPlayback", "tvChannel"},
			wantKind: KindMediaPlayer,
			wantOK:   true,
		},
		{
			name:     "speaker with volume only",
			caps:     []string{"audioVolume", "audioMute"},
			wantKind: KindMediaPlayer,
			wantOK:   true,
		},
		{
			name:     "lock renders as a sensor",
			caps:     []string{"lock", "battery"},
			wantKind: KindSensor,
			wantOK:   true,
		},
		{
			name:     "button",
			caps:     []string{"button", "battery"},
			wantKind: KindButton,
			wantOK:   true,
		},
		{
			name:     "momentary relay is a button",
			caps:     []string{"momentary"},
			wantKind: KindButton,
			wantOK:   true,
		},
		{
			// Excluded from the light rule, but the level capability also
			// disqualifies it as a pure switch: sensor sub-entities only.
			name:   "dimmable device with contact sensor has no primary kind",
			caps:   []string{"switch", "switchLevel", "contactSensor"},
			wantOK: false,
		},
		{
			name:   "switch with colour control never falls back to switch",
			caps:   []string{"switch", "colorControl", "motionSensor"},
			wantOK: false,
		},
		{
			name:   "pure sensor has no primary kind",
			caps:   []string{"temperatureMeasurement", "relativeHumidityMeasurement", "battery"},
			wantOK: false,
		},
		{
			name:   "empty capability set",
			caps:   nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := ResolvePrimary(NewCapabilitySet(tt.caps...))
			if ok != tt.wantOK {
				t.Fatalf("ResolvePrimary() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && kind != tt.wantKind {
				t.Errorf("ResolvePrimary() = %v, want %v", kind, tt.wantKind)
			}
		})
	}
}

func TestResolveSensors(t *testing.T) {
	caps := NewCapabilitySet(
		"battery",
		"temperatureMeasurement",
		"switch",
		"powerMeter",
	)

	classes := ResolveSensors(caps)

	// Fixed evaluation order, not capability order.
	want := []string{"temperature", "battery", "power"}
	if len(classes) != len(want) {
		t.Fatalf("got %d sensor classes, want %d", len(classes), len(want))
	}
	for i, sc := range classes {
		if sc.Class != want[i] {
			t.Errorf("classes[%d] = %q, want %q", i, sc.Class, want[i])
		}
	}
}

func TestResolveSensors_IndependentOfPrimary(t *testing.T) {
	// A light that also reports power draws both entity paths.
	caps := NewCapabilitySet("switch", "switchLevel", "powerMeter", "energyMeter")

	kind, ok := ResolvePrimary(caps)
	if !ok || kind != KindLight {
		t.Fatalf("ResolvePrimary() = %v, %v; want light", kind, ok)
	}

	classes := ResolveSensors(caps)
	if len(classes) != 2 {
		t.Fatalf("got %d sensor classes, want 2", len(classes))
	}
	if classes[0].Class != "power" || classes[1].Class != "energy" {
		t.Errorf("classes = %v, want power then energy", classes)
	}
}

func TestCapabilitySet_OrderAndDedup(t *testing.T) {
	s := NewCapabilitySet("switch", "switchLevel", "switch", "battery", "switchLevel")

	got := s.List()
	want := []string{"switch", "switchLevel", "battery"}
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if !s.HasAll("switch", "battery") {
		t.Error("HasAll(switch, battery) = false, want true")
	}
	if s.HasAny("lock", "button") {
		t.Error("HasAny(lock, button) = true, want false")
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}
