// stdiag - SmartThings capability diagnostics
//
// stdiag connects to the SmartThings API with the bridge's
// configuration, walks every device in the configured location, and
// reports how each one would render: its capabilities, resolved entity
// kind, sensor classes, and which expected attributes the live status
// actually carries. The report is JSON on stdout, one document for the
// whole location.
//
// Usage:
//
//	stdiag -config configs/config.yaml
//	stdiag -status=false   # skip live status fetches, structure only
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/nerrad567/stbridge/internal/entity"
	"github.com/nerrad567/stbridge/internal/infrastructure/config"
	"github.com/nerrad567/stbridge/internal/smartthings"
)

// reportTimeout bounds the whole diagnostic run.
const reportTimeout = 2 * time.Minute

// Report is the top-level JSON document.
type Report struct {
	GeneratedAt time.Time      `json:"generated_at"`
	LocationID  string         `json:"location_id,omitempty"`
	Devices     []DeviceReport `json:"devices"`
	Summary     Summary        `json:"summary"`
}

// DeviceReport describes how one device resolves.
type DeviceReport struct {
	DeviceID     string   `json:"device_id"`
	Label        string   `json:"label"`
	Capabilities []string `json:"capabilities"`

	// Kind is the resolved primary kind, empty when no rule matches.
	Kind string `json:"kind,omitempty"`

	// SensorClasses are the independently detected sensor subtypes.
	SensorClasses []string `json:"sensor_classes,omitempty"`

	// Entities are the IDs the builder would produce.
	Entities []string `json:"entities"`

	// MissingAttributes lists capability/attribute pairs the resolver
	// expects but the live status does not report. Only populated when
	// status fetching is enabled.
	MissingAttributes []string `json:"missing_attributes,omitempty"`

	StatusError string `json:"status_error,omitempty"`
}

// Summary aggregates the per-device results.
type Summary struct {
	Devices     int `json:"devices"`
	Entities    int `json:"entities"`
	Unresolved  int `json:"unresolved"`
	StatusGaps  int `json:"status_gaps"`
	FetchErrors int `json:"fetch_errors"`
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to configuration file")
	fetchStatus := flag.Bool("status", true, "fetch live device status and verify attribute sources")
	flag.Parse()

	if err := run(*configPath, *fetchStatus); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, fetchStatus bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client := smartthings.New(cfg.SmartThings)

	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	devices, err := client.Devices(ctx, cfg.SmartThings.LocationID)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}

	report := Report{
		GeneratedAt: time.Now().UTC(),
		LocationID:  cfg.SmartThings.LocationID,
		Devices:     make([]DeviceReport, 0, len(devices)),
	}

	for _, device := range devices {
		dr := inspectDevice(ctx, client, device, fetchStatus)

		report.Summary.Devices++
		report.Summary.Entities += len(dr.Entities)
		if dr.Kind == "" && len(dr.SensorClasses) == 0 {
			report.Summary.Unresolved++
		}
		if len(dr.MissingAttributes) > 0 {
			report.Summary.StatusGaps++
		}
		if dr.StatusError != "" {
			report.Summary.FetchErrors++
		}

		report.Devices = append(report.Devices, dr)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// inspectDevice resolves one device and, when enabled, checks its live
// status for the attribute sources the resolver expects.
func inspectDevice(ctx context.Context, client *smartthings.Client, device smartthings.Device, fetchStatus bool) DeviceReport {
	caps := entity.ExtractCapabilities(device)

	dr := DeviceReport{
		DeviceID:     device.DeviceID,
		Label:        device.DisplayName(),
		Capabilities: caps.List(),
	}

	if kind, ok := entity.ResolvePrimary(caps); ok {
		dr.Kind = string(kind)
	}
	for _, sc := range entity.ResolveSensors(caps) {
		dr.SensorClasses = append(dr.SensorClasses, sc.Class)
	}

	// Enumerate with every kind included so the report shows the full
	// potential entity set regardless of bridge filter settings.
	include := config.EntitiesConfig{
		IncludeLights:       true,
		IncludeSwitches:     true,
		IncludeSensors:      true,
		IncludeClimate:      true,
		IncludeCovers:       true,
		IncludeMediaPlayers: true,
		IncludeButtons:      true,
	}
	for _, e := range entity.Build(device, "", include) {
		dr.Entities = append(dr.Entities, e.ID)
	}

	if !fetchStatus {
		return dr
	}

	status, err := client.DeviceStatus(ctx, device.DeviceID)
	if err != nil {
		dr.StatusError = err.Error()
		return dr
	}

	dr.MissingAttributes = missingAttributes(caps, status)
	return dr
}

// expectedSources lists the capability/attribute pairs the translator
// reads. audioVolume appears twice: it backs both volume and mute.
var expectedSources = [][2]string{
	{"switch", "switch"},
	{"switchLevel", "level"},
	{"fanSpeed", "fanSpeed"},
	{"colorControl", "hue"},
	{"colorTemperature", "colorTemperature"},
	{"thermostatMode", "thermostatMode"},
	{"thermostatFanMode", "thermostatFanMode"},
	{"thermostatHeatingSetpoint", "heatingSetpoint"},
	{"thermostatCoolingSetpoint", "coolingSetpoint"},
	{"temperatureMeasurement", "temperature"},
	{"windowShade", "windowShade"},
	{"doorControl", "door"},
	{"garageDoorControl", "door"},
	{"windowShadeLevel", "shadeLevel"},
	{"mediaPlayback", "playbackStatus"},
	{"mediaInputSource", "inputSource"},
	{"audioVolume", "volume"},
	{"audioVolume", "mute"},
	{"lock", "lock"},
}

// missingAttributes reports capability/attribute pairs the device
// advertises but its status omits. A gap means the translator will
// never produce the corresponding entity attribute.
func missingAttributes(caps *entity.CapabilitySet, status smartthings.Status) []string {
	seen := make(map[string]struct{})

	check := func(capability, attribute string) {
		if !caps.Has(capability) {
			return
		}
		if _, ok := status.Value(capability, attribute); !ok {
			seen[capability+"."+attribute] = struct{}{}
		}
	}

	for _, pair := range expectedSources {
		check(pair[0], pair[1])
	}
	for _, sc := range entity.ResolveSensors(caps) {
		check(sc.Capability, sc.Attribute)
	}

	if len(seen) == 0 {
		return nil
	}
	missing := make([]string, 0, len(seen))
	for pair := range seen {
		missing = append(missing, pair)
	}
	sort.Strings(missing)
	return missing
}

func defaultConfigPath() string {
	if path := os.Getenv("STBRIDGE_CONFIG"); path != "" {
		return path
	}
	return "configs/config.yaml"
}
