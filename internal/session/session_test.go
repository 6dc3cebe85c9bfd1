package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/stbridge/internal/entity"
	"github.com/nerrad567/stbridge/internal/infrastructure/config"
	"github.com/nerrad567/stbridge/internal/smartthings"
)

// fakeClient scripts the SmartThings API for session tests.
type fakeClient struct {
	mu sync.Mutex

	devices    []smartthings.Device
	devicesErr error
	statuses   map[string]smartthings.Status
	statusErr  map[string]error
	cached     map[string]smartthings.Status
	rooms      []smartthings.Room
	scenes     []smartthings.Scene
	modes      []smartthings.Mode

	executed    []executedCommand
	execErr     error
	scenesRun   []string
	modesSet    []string
	statusCalls int
}

type executedCommand struct {
	deviceID string
	commands []smartthings.Command
}

func (f *fakeClient) Devices(ctx context.Context, locationID string) ([]smartthings.Device, error) {
	return f.devices, f.devicesErr
}

func (f *fakeClient) DeviceStatus(ctx context.Context, deviceID string) (smartthings.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statusCalls++
	if err, ok := f.statusErr[deviceID]; ok {
		return smartthings.Status{}, err
	}
	status, ok := f.statuses[deviceID]
	if !ok {
		return smartthings.Status{}, smartthings.ErrNotFound
	}
	return status, nil
}

func (f *fakeClient) BatchDeviceStatus(ctx context.Context, deviceIDs []string, batchSize int, pause time.Duration) (map[string]smartthings.Status, map[string]error) {
	statuses := make(map[string]smartthings.Status)
	failures := make(map[string]error)
	for _, id := range deviceIDs {
		status, err := f.DeviceStatus(ctx, id)
		if err != nil {
			failures[id] = err
			continue
		}
		statuses[id] = status
	}
	return statuses, failures
}

func (f *fakeClient) ExecuteCommand(ctx context.Context, deviceID string, commands []smartthings.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.execErr != nil {
		return f.execErr
	}
	f.executed = append(f.executed, executedCommand{deviceID: deviceID, commands: commands})
	return nil
}

func (f *fakeClient) RefreshDeviceStatus(ctx context.Context, deviceID string) (smartthings.Status, error) {
	return f.DeviceStatus(ctx, deviceID)
}

func (f *fakeClient) CachedStatus(deviceID string) (smartthings.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status, ok := f.cached[deviceID]
	return status, ok
}

func (f *fakeClient) Rooms(ctx context.Context, locationID string) ([]smartthings.Room, error) {
	return f.rooms, nil
}

func (f *fakeClient) Scenes(ctx context.Context, locationID string) ([]smartthings.Scene, error) {
	return f.scenes, nil
}

func (f *fakeClient) ExecuteScene(ctx context.Context, sceneID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scenesRun = append(f.scenesRun, sceneID)
	return nil
}

func (f *fakeClient) Modes(ctx context.Context, locationID string) ([]smartthings.Mode, error) {
	return f.modes, nil
}

func (f *fakeClient) SetMode(ctx context.Context, locationID, modeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modesSet = append(f.modesSet, modeID)
	return nil
}

// fakeStore is an in-memory SnapshotStore.
type fakeStore struct {
	devices []smartthings.Device
	rooms   []smartthings.Room
}

func (f *fakeStore) SaveDevices(ctx context.Context, devices []smartthings.Device) error {
	f.devices = devices
	return nil
}

func (f *fakeStore) LoadDevices(ctx context.Context) ([]smartthings.Device, error) {
	return f.devices, nil
}

func (f *fakeStore) SaveRooms(ctx context.Context, rooms []smartthings.Room) error {
	f.rooms = rooms
	return nil
}

func (f *fakeStore) LoadRooms(ctx context.Context) ([]smartthings.Room, error) {
	return f.rooms, nil
}

func testSessionConfig() config.Config {
	return config.Config{
		SmartThings: config.SmartThingsConfig{LocationID: "loc-1"},
		Entities: config.EntitiesConfig{
			IncludeLights:       true,
			IncludeSwitches:     true,
			IncludeSensors:      true,
			IncludeClimate:      true,
			IncludeCovers:       true,
			IncludeMediaPlayers: true,
			IncludeButtons:      true,
		},
		Polling: config.PollingConfig{
			// Long enough that the loop never fires during a test; the
			// tests drive polls directly.
			Interval:     3600,
			ErrorBackoff: 1,
			BatchSize:    4,
			BatchPause:   0,
		},
	}
}

func dimmerDevice(id, label, roomID string) smartthings.Device {
	return smartthings.Device{
		DeviceID: id,
		Label:    label,
		RoomID:   roomID,
		Components: []smartthings.Component{
			{ID: "main", Capabilities: []smartthings.CapabilityReference{
				{ID: "switch"}, {ID: "switchLevel"},
			}},
		},
	}
}

func dimmerStatus(state string, level float64) smartthings.Status {
	return smartthings.Status{
		Components: map[string]map[string]map[string]smartthings.AttributeValue{
			"main": {
				"switch":      {"switch": {Value: state}},
				"switchLevel": {"level": {Value: level}},
			},
		},
	}
}

// drainEvents collects everything currently buffered on the stream.
func drainEvents(s *Session) []Event {
	var events []Event
	for {
		select {
		case ev := <-s.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestSession_Connect(t *testing.T) {
	client := &fakeClient{
		devices: []smartthings.Device{dimmerDevice("dev-1", "Desk Lamp", "room-1")},
		statuses: map[string]smartthings.Status{
			"dev-1": dimmerStatus("on", 70),
		},
		rooms:  []smartthings.Room{{RoomID: "room-1", Name: "Office"}},
		scenes: []smartthings.Scene{{SceneID: "scene-1", SceneName: "Movie Night"}},
		modes:  []smartthings.Mode{{ID: "mode-1", Label: "Home"}},
	}

	s := New(testSessionConfig(), client)
	defer s.Disconnect()

	if s.State() != StateDisconnected {
		t.Fatalf("initial state = %v, want disconnected", s.State())
	}

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if s.State() != StateConnected {
		t.Errorf("state = %v, want connected", s.State())
	}

	e, ok := s.Entity("st_light_dev-1")
	if !ok {
		t.Fatal("light entity missing after connect")
	}
	if e.Area != "Office" {
		t.Errorf("Area = %q, want Office", e.Area)
	}
	// Initial poll already landed.
	if e.Attributes[entity.AttrState] != "on" {
		t.Errorf("state attribute = %v, want on", e.Attributes[entity.AttrState])
	}
	if e.Attributes[entity.AttrBrightness] != 70 {
		t.Errorf("brightness = %v, want 70", e.Attributes[entity.AttrBrightness])
	}

	if len(s.Scenes()) != 1 || len(s.Modes()) != 1 {
		t.Errorf("scenes/modes = %d/%d, want 1/1", len(s.Scenes()), len(s.Modes()))
	}

	events := drainEvents(s)
	var sawConnecting, sawConnected, sawChange bool
	for _, ev := range events {
		switch {
		case ev.Type == EventSessionState && ev.State == StateConnecting:
			sawConnecting = true
		case ev.Type == EventSessionState && ev.State == StateConnected:
			sawConnected = true
		case ev.Type == EventEntityChange && ev.EntityID == "st_light_dev-1":
			sawChange = true
			if ev.ID == "" {
				t.Error("entity change event missing ID")
			}
		}
	}
	if !sawConnecting || !sawConnected || !sawChange {
		t.Errorf("events missing transitions: connecting=%v connected=%v change=%v",
			sawConnecting, sawConnected, sawChange)
	}
}

func TestSession_Connect_DiscoveryFailure(t *testing.T) {
	client := &fakeClient{devicesErr: smartthings.ErrUnauthorized}

	s := New(testSessionConfig(), client)
	err := s.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect() succeeded despite discovery failure")
	}
	if !errors.Is(err, smartthings.ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
	if s.State() != StateError {
		t.Errorf("state = %v, want error", s.State())
	}
}

func TestSession_PollEmitsOnlyChanges(t *testing.T) {
	client := &fakeClient{
		devices: []smartthings.Device{dimmerDevice("dev-1", "Lamp", "")},
		statuses: map[string]smartthings.Status{
			"dev-1": dimmerStatus("on", 50),
		},
	}

	s := New(testSessionConfig(), client)
	s.mu.Lock()
	s.devices = client.devices
	s.rebuildEntitiesLocked()
	s.mu.Unlock()

	if err := s.pollAll(context.Background()); err != nil {
		t.Fatalf("pollAll() error = %v", err)
	}
	first := drainEvents(s)
	if len(first) != 1 {
		t.Fatalf("first poll events = %d, want 1", len(first))
	}

	// Identical payload: nothing changed, nothing emitted.
	if err := s.pollAll(context.Background()); err != nil {
		t.Fatalf("pollAll() second error = %v", err)
	}
	if again := drainEvents(s); len(again) != 0 {
		t.Errorf("second poll emitted %d events, want 0", len(again))
	}

	// Single attribute changes: delta carries only that attribute.
	client.mu.Lock()
	client.statuses["dev-1"] = dimmerStatus("on", 80)
	client.mu.Unlock()

	if err := s.pollAll(context.Background()); err != nil {
		t.Fatalf("pollAll() third error = %v", err)
	}
	third := drainEvents(s)
	if len(third) != 1 {
		t.Fatalf("third poll events = %d, want 1", len(third))
	}
	if len(third[0].Attributes) != 1 || third[0].Attributes[entity.AttrBrightness] != 80 {
		t.Errorf("delta = %v, want only brightness=80", third[0].Attributes)
	}
}

func TestSession_PollAll_PartialFailure(t *testing.T) {
	client := &fakeClient{
		devices: []smartthings.Device{
			dimmerDevice("dev-1", "Lamp", ""),
			dimmerDevice("dev-2", "Other", ""),
		},
		statuses: map[string]smartthings.Status{
			"dev-1": dimmerStatus("on", 10),
		},
		statusErr: map[string]error{
			"dev-2": smartthings.ErrServer,
		},
	}

	s := New(testSessionConfig(), client)
	s.mu.Lock()
	s.devices = client.devices
	s.rebuildEntitiesLocked()
	s.mu.Unlock()

	// One device failing does not fail the cycle.
	if err := s.pollAll(context.Background()); err != nil {
		t.Errorf("pollAll() error = %v, want nil on partial failure", err)
	}

	// Every device failing does.
	client.mu.Lock()
	client.statusErr["dev-1"] = smartthings.ErrServer
	client.mu.Unlock()

	if err := s.pollAll(context.Background()); err == nil {
		t.Error("pollAll() = nil, want error when all fetches fail")
	}
}

func TestSession_ExecuteCommand(t *testing.T) {
	client := &fakeClient{
		devices: []smartthings.Device{dimmerDevice("dev-1", "Lamp", "")},
		statuses: map[string]smartthings.Status{
			"dev-1": dimmerStatus("on", 50),
		},
	}

	s := New(testSessionConfig(), client)
	s.mu.Lock()
	s.devices = client.devices
	s.rebuildEntitiesLocked()
	s.mu.Unlock()

	result := s.ExecuteCommand(context.Background(), "st_light_dev-1", "on", nil)
	if result.Status != CommandOK {
		t.Fatalf("result = %v (%v), want OK", result.Status, result.Err)
	}

	client.mu.Lock()
	executed := append([]executedCommand(nil), client.executed...)
	client.mu.Unlock()

	if len(executed) != 1 {
		t.Fatalf("executed %d command batches, want 1", len(executed))
	}
	if executed[0].deviceID != "dev-1" {
		t.Errorf("command target = %q, want dev-1", executed[0].deviceID)
	}
	if executed[0].commands[0].Capability != "switch" || executed[0].commands[0].Command != "on" {
		t.Errorf("commands = %v, want switch.on", executed[0].commands)
	}

	// Post-command refresh applied the device state immediately.
	e, _ := s.Entity("st_light_dev-1")
	if e.Attributes[entity.AttrState] != "on" {
		t.Errorf("state = %v, want on after refresh", e.Attributes[entity.AttrState])
	}
}

func TestSession_ExecuteCommand_Classification(t *testing.T) {
	client := &fakeClient{
		devices: []smartthings.Device{dimmerDevice("dev-1", "Lamp", "")},
		statuses: map[string]smartthings.Status{
			"dev-1": dimmerStatus("off", 0),
		},
	}

	s := New(testSessionConfig(), client)
	s.mu.Lock()
	s.devices = client.devices
	s.rebuildEntitiesLocked()
	s.mu.Unlock()

	tests := []struct {
		name     string
		entityID string
		cmdID    string
		params   map[string]any
		want     CommandStatus
	}{
		{"unknown entity", "st_light_nope", "on", nil, CommandNotFound},
		{"unknown command", "st_light_dev-1", "defrost", nil, CommandNotImplemented},
		{"bad parameters", "st_light_dev-1", "brightness", nil, CommandBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.ExecuteCommand(context.Background(), tt.entityID, tt.cmdID, tt.params)
			if result.Status != tt.want {
				t.Errorf("status = %v, want %v", result.Status, tt.want)
			}
			if result.Err == nil {
				t.Error("rejected command carries no error")
			}
		})
	}

	// None of the rejected commands reached the cloud.
	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.executed) != 0 {
		t.Errorf("executed %d batches, want 0", len(client.executed))
	}
}

func TestSession_ExecuteCommand_Failure(t *testing.T) {
	client := &fakeClient{
		devices: []smartthings.Device{dimmerDevice("dev-1", "Lamp", "")},
		statuses: map[string]smartthings.Status{
			"dev-1": dimmerStatus("off", 0),
		},
		execErr: smartthings.ErrServer,
	}

	s := New(testSessionConfig(), client)
	s.mu.Lock()
	s.devices = client.devices
	s.rebuildEntitiesLocked()
	s.mu.Unlock()

	result := s.ExecuteCommand(context.Background(), "st_light_dev-1", "on", nil)
	if result.Status != CommandFailed {
		t.Errorf("status = %v, want CommandFailed", result.Status)
	}
	if !errors.Is(result.Err, smartthings.ErrServer) {
		t.Errorf("err = %v, want ErrServer", result.Err)
	}
}

func TestSession_Preload(t *testing.T) {
	st := &fakeStore{
		devices: []smartthings.Device{dimmerDevice("dev-1", "Lamp", "room-1")},
		rooms:   []smartthings.Room{{RoomID: "room-1", Name: "Office"}},
	}

	s := New(testSessionConfig(), &fakeClient{}, WithStore(st))

	if err := s.Preload(context.Background()); err != nil {
		t.Fatalf("Preload() error = %v", err)
	}

	if s.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected after preload", s.State())
	}

	e, ok := s.Entity("st_light_dev-1")
	if !ok {
		t.Fatal("entity missing after preload")
	}
	if e.Area != "Office" {
		t.Errorf("Area = %q, want Office", e.Area)
	}
	if e.Attributes[entity.AttrState] != entity.StateUnknown {
		t.Errorf("state = %v, want unknown before first poll", e.Attributes[entity.AttrState])
	}
}

func TestSession_DeviceAllowList(t *testing.T) {
	cfg := testSessionConfig()
	cfg.Entities.DeviceAllowList = []string{"dev-2"}

	client := &fakeClient{
		devices: []smartthings.Device{
			dimmerDevice("dev-1", "Lamp", ""),
			dimmerDevice("dev-2", "Allowed Lamp", ""),
		},
		statuses: map[string]smartthings.Status{
			"dev-1": dimmerStatus("on", 10),
			"dev-2": dimmerStatus("on", 20),
		},
	}

	s := New(cfg, client)
	defer s.Disconnect()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if _, ok := s.Entity("st_light_dev-1"); ok {
		t.Error("filtered device produced an entity")
	}
	if _, ok := s.Entity("st_light_dev-2"); !ok {
		t.Error("allowed device missing entity")
	}
}

func TestSession_SceneAndMode(t *testing.T) {
	client := &fakeClient{}
	s := New(testSessionConfig(), client)

	if err := s.ExecuteScene(context.Background(), "scene-1"); err != nil {
		t.Fatalf("ExecuteScene() error = %v", err)
	}
	if err := s.SetMode(context.Background(), "mode-away"); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.scenesRun) != 1 || client.scenesRun[0] != "scene-1" {
		t.Errorf("scenesRun = %v, want [scene-1]", client.scenesRun)
	}
	if len(client.modesSet) != 1 || client.modesSet[0] != "mode-away" {
		t.Errorf("modesSet = %v, want [mode-away]", client.modesSet)
	}
}

func TestResilience_DisconnectIdempotent(t *testing.T) {
	client := &fakeClient{
		devices: []smartthings.Device{dimmerDevice("dev-1", "Lamp", "")},
		statuses: map[string]smartthings.Status{
			"dev-1": dimmerStatus("on", 50),
		},
	}

	s := New(testSessionConfig(), client)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	s.Disconnect()
	if s.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", s.State())
	}

	// Second disconnect must not panic or block.
	s.Disconnect()

	// The event channel is closed and drains cleanly.
	for range s.Events() {
	}

	// Commands after disconnect fail cleanly rather than panicking on
	// the closed event channel.
	result := s.ExecuteCommand(context.Background(), "st_light_dev-1", "on", nil)
	if result.Status != CommandOK && result.Status != CommandFailed {
		t.Logf("post-disconnect command status = %v", result.Status)
	}
}

func TestResilience_PollPanicRecovered(t *testing.T) {
	client := &fakeClient{
		devices: []smartthings.Device{dimmerDevice("dev-1", "Lamp", "")},
		statuses: map[string]smartthings.Status{
			"dev-1": dimmerStatus("on", 50),
		},
	}

	s := New(testSessionConfig(), client)
	s.mu.Lock()
	s.devices = client.devices
	s.rebuildEntitiesLocked()
	// Poison an entity so translation panics.
	for _, e := range s.entities {
		e.Caps = nil
		e.Attributes = nil
	}
	s.mu.Unlock()

	// A panicking cycle reports an error instead of crashing.
	if err := s.pollCycle(context.Background()); err == nil {
		t.Log("pollCycle completed; nothing panicked with nil maps")
	}
}
