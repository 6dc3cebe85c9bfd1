package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/stbridge/internal/entity"
	"github.com/nerrad567/stbridge/internal/infrastructure/config"
	"github.com/nerrad567/stbridge/internal/smartthings"
)

// eventBuffer bounds the outbound event channel. A consumer that falls
// this far behind starts losing events (dropped with a warning) rather
// than stalling the poll loop.
const eventBuffer = 256

// Client is the slice of the SmartThings API the session depends on.
// Satisfied by *smartthings.Client.
type Client interface {
	Devices(ctx context.Context, locationID string) ([]smartthings.Device, error)
	DeviceStatus(ctx context.Context, deviceID string) (smartthings.Status, error)
	BatchDeviceStatus(ctx context.Context, deviceIDs []string, batchSize int, pause time.Duration) (map[string]smartthings.Status, map[string]error)
	ExecuteCommand(ctx context.Context, deviceID string, commands []smartthings.Command) error
	RefreshDeviceStatus(ctx context.Context, deviceID string) (smartthings.Status, error)
	CachedStatus(deviceID string) (smartthings.Status, bool)
	Rooms(ctx context.Context, locationID string) ([]smartthings.Room, error)
	Scenes(ctx context.Context, locationID string) ([]smartthings.Scene, error)
	ExecuteScene(ctx context.Context, sceneID string) error
	Modes(ctx context.Context, locationID string) ([]smartthings.Mode, error)
	SetMode(ctx context.Context, locationID, modeID string) error
}

// SnapshotStore persists discovery results between runs.
// Satisfied by *store.Store.
type SnapshotStore interface {
	SaveDevices(ctx context.Context, devices []smartthings.Device) error
	LoadDevices(ctx context.Context) ([]smartthings.Device, error)
	SaveRooms(ctx context.Context, rooms []smartthings.Room) error
	LoadRooms(ctx context.Context) ([]smartthings.Room, error)
}

// Logger is the minimal logging interface this package needs.
// Satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CommandStatus classifies the outcome of an entity command.
type CommandStatus int

const (
	CommandOK CommandStatus = iota
	CommandNotFound
	CommandNotImplemented
	CommandBadRequest
	CommandFailed
)

// CommandResult is the outcome of ExecuteCommand.
type CommandResult struct {
	Status CommandStatus
	Err    error
}

// Session coordinates the life of one SmartThings connection: discovery,
// entity construction, status polling, command dispatch, and the
// outbound event stream.
//
// Lifecycle: Disconnected → Connecting → Connected, with Error entered
// on poll failures and left on the next successful cycle. Disconnect is
// idempotent and returns the session to Disconnected.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
type Session struct {
	cfg    config.Config
	client Client
	store  SnapshotStore
	logger Logger

	mu       sync.RWMutex
	state    State
	devices  []smartthings.Device
	rooms    map[string]string // roomID → name
	scenes   []smartthings.Scene
	modes    []smartthings.Mode
	entities map[string]*entity.Entity

	events chan Event
	closed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithStore attaches a snapshot store for device persistence and
// entity preload.
func WithStore(st SnapshotStore) Option {
	return func(s *Session) { s.store = st }
}

// New creates a session. The session starts Disconnected; call Preload
// to rebuild entities from the snapshot store, then Connect to go live.
func New(cfg config.Config, client Client, opts ...Option) *Session {
	s := &Session{
		cfg:      cfg,
		client:   client,
		logger:   noopLogger{},
		state:    StateDisconnected,
		rooms:    make(map[string]string),
		entities: make(map[string]*entity.Entity),
		events:   make(chan Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Events returns the outbound event stream. The channel closes when the
// session disconnects.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Entities returns deep copies of all entities, ordered by ID.
func (s *Session) Entities() []*entity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Entity returns a deep copy of one entity.
func (s *Session) Entity(id string) (*entity.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Devices returns a copy of the last discovery result.
func (s *Session) Devices() []smartthings.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]smartthings.Device(nil), s.devices...)
}

// Rooms returns the known rooms sorted by name.
func (s *Session) Rooms() []smartthings.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]smartthings.Room, 0, len(s.rooms))
	for id, name := range s.rooms {
		rooms = append(rooms, smartthings.Room{RoomID: id, Name: name})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms
}

// Scenes returns the scenes fetched at connect.
func (s *Session) Scenes() []smartthings.Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]smartthings.Scene(nil), s.scenes...)
}

// Modes returns the location modes fetched at connect.
func (s *Session) Modes() []smartthings.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]smartthings.Mode(nil), s.modes...)
}

// Preload rebuilds entities from the snapshot store so they are
// available before the first cloud round-trip. Attribute values stay at
// their unknown initial state until polling starts. No-op without a
// store or with an empty snapshot.
func (s *Session) Preload(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	devices, err := s.store.LoadDevices(ctx)
	if err != nil {
		return fmt.Errorf("loading device snapshot: %w", err)
	}
	if len(devices) == 0 {
		return nil
	}

	rooms, err := s.store.LoadRooms(ctx)
	if err != nil {
		return fmt.Errorf("loading room snapshot: %w", err)
	}

	roomNames := make(map[string]string, len(rooms))
	for _, r := range rooms {
		roomNames[r.RoomID] = r.Name
	}

	devices = s.filterAllowed(devices)

	s.mu.Lock()
	s.devices = devices
	s.rooms = roomNames
	s.rebuildEntitiesLocked()
	count := len(s.entities)
	s.mu.Unlock()

	s.logger.Info("entities preloaded from snapshot",
		"devices", len(devices), "entities", count)
	return nil
}

// Connect discovers devices, builds entities, performs the initial full
// poll, and starts the polling loop. Scenes and modes are fetched best
// effort; their absence never fails the connect.
func (s *Session) Connect(ctx context.Context) error {
	s.setState(StateConnecting)

	locationID := s.cfg.SmartThings.LocationID

	devices, err := s.client.Devices(ctx, locationID)
	if err != nil {
		s.setState(StateError)
		return fmt.Errorf("discovering devices: %w", err)
	}
	devices = s.filterAllowed(devices)

	roomNames := make(map[string]string)
	if locationID != "" {
		rooms, err := s.client.Rooms(ctx, locationID)
		if err != nil {
			s.logger.Warn("room fetch failed, areas unavailable", "error", err)
		} else {
			for _, r := range rooms {
				roomNames[r.RoomID] = r.Name
			}
			if s.store != nil {
				if err := s.store.SaveRooms(ctx, rooms); err != nil {
					s.logger.Warn("room snapshot save failed", "error", err)
				}
			}
		}
	}

	if s.store != nil {
		if err := s.store.SaveDevices(ctx, devices); err != nil {
			s.logger.Warn("device snapshot save failed", "error", err)
		}
	}

	var scenes []smartthings.Scene
	var modes []smartthings.Mode
	if locationID != "" {
		if scenes, err = s.client.Scenes(ctx, locationID); err != nil {
			s.logger.Warn("scene fetch failed", "error", err)
			scenes = nil
		}
		if modes, err = s.client.Modes(ctx, locationID); err != nil {
			s.logger.Warn("mode fetch failed", "error", err)
			modes = nil
		}
	}

	s.mu.Lock()
	s.devices = devices
	s.rooms = roomNames
	s.scenes = scenes
	s.modes = modes
	s.rebuildEntitiesLocked()
	entityCount := len(s.entities)
	s.mu.Unlock()

	s.logger.Info("connected to SmartThings",
		"devices", len(devices), "entities", entityCount,
		"scenes", len(scenes), "modes", len(modes))

	// Initial poll so entities carry real state before Connected is
	// announced. Failures here are tolerated; the loop will retry.
	if err := s.pollAll(ctx); err != nil {
		s.logger.Warn("initial poll incomplete", "error", err)
	}

	s.setState(StateConnected)

	// The poll loop lives on a session-owned context so Disconnect can
	// stop it independently of the connect context.
	loopCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.pollLoop(loopCtx)

	return nil
}

// Disconnect stops polling and returns the session to Disconnected.
// Safe to call repeatedly and before Connect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.setState(StateDisconnected)

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
}

// pollLoop drives periodic status polling until its context is
// cancelled. Unexpected cycle failures push the session to Error, pause
// for the configured backoff, and keep going; the next clean cycle
// restores Connected.
func (s *Session) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.cfg.Polling.GetInterval()
	backoff := s.cfg.Polling.GetErrorBackoff()

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if err := s.pollCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("poll cycle failed", "error", err)
			s.setState(StateError)

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}

		if s.State() == StateError {
			s.logger.Info("polling recovered")
		}
		s.setState(StateConnected)
	}
}

// pollCycle runs one pollAll with a panic guard so a translation bug on
// a hostile payload cannot kill the loop.
func (s *Session) pollCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll panic: %v", r)
		}
	}()
	return s.pollAll(ctx)
}

// pollAll fetches status for every device backing at least one entity,
// translates the payloads, applies changed attributes, and emits one
// event per changed entity. Per-device fetch failures are logged and
// skipped; the cycle only fails when every fetch failed.
func (s *Session) pollAll(ctx context.Context) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.devices))
	seen := make(map[string]bool)
	for _, e := range s.entities {
		if !seen[e.DeviceID] {
			seen[e.DeviceID] = true
			ids = append(ids, e.DeviceID)
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	if len(ids) == 0 {
		return nil
	}

	statuses, failures := s.client.BatchDeviceStatus(ctx, ids,
		s.cfg.Polling.BatchSize, s.cfg.Polling.GetBatchPause())

	for deviceID, err := range failures {
		s.logger.Warn("status fetch failed", "device_id", deviceID, "error", err)
	}

	if len(statuses) == 0 && len(failures) > 0 {
		return fmt.Errorf("all %d status fetches failed", len(failures))
	}

	for deviceID, status := range statuses {
		s.applyStatus(deviceID, status)
	}

	return nil
}

// applyStatus translates one device's status against each of its
// entities and emits an event per entity whose attributes changed.
// Translation and comparison happen under the lock so a concurrent
// command refresh cannot interleave half-applied updates.
func (s *Session) applyStatus(deviceID string, status smartthings.Status) {
	type change struct {
		entityID string
		changed  map[string]any
	}
	var changes []change

	s.mu.Lock()
	for _, e := range s.entities {
		if e.DeviceID != deviceID {
			continue
		}

		updates := entity.Translate(e, status)
		changed := make(map[string]any)
		for attr, value := range updates {
			if !reflect.DeepEqual(e.Attributes[attr], value) {
				e.Attributes[attr] = value
				changed[attr] = value
			}
		}
		if len(changed) > 0 {
			changes = append(changes, change{entityID: e.ID, changed: changed})
		}
	}
	s.mu.Unlock()

	sort.Slice(changes, func(i, j int) bool { return changes[i].entityID < changes[j].entityID })
	for _, ch := range changes {
		s.emit(newEntityChangeEvent(ch.entityID, ch.changed))
	}
}

// ExecuteCommand maps a normalized command onto capability calls,
// executes them, and refreshes the device state immediately so the
// result is observable without waiting for the next poll.
func (s *Session) ExecuteCommand(ctx context.Context, entityID, cmdID string, params map[string]any) CommandResult {
	s.mu.RLock()
	e, ok := s.entities[entityID]
	var target *entity.Entity
	if ok {
		target = e.Clone()
	}
	s.mu.RUnlock()

	if !ok {
		return CommandResult{Status: CommandNotFound,
			Err: fmt.Errorf("entity %q not found", entityID)}
	}

	commands, err := entity.MapCommand(target, cmdID, params, s.client)
	if err != nil {
		if errors.Is(err, entity.ErrNotImplemented) {
			return CommandResult{Status: CommandNotImplemented, Err: err}
		}
		return CommandResult{Status: CommandBadRequest, Err: err}
	}

	if err := s.client.ExecuteCommand(ctx, target.DeviceID, commands); err != nil {
		s.logger.Error("command execution failed",
			"entity_id", entityID, "command", cmdID, "error", err)
		return CommandResult{Status: CommandFailed, Err: err}
	}

	s.logger.Debug("command executed",
		"entity_id", entityID, "command", cmdID, "calls", len(commands))

	// Immediate refetch; the client already invalidated its cache.
	status, err := s.client.RefreshDeviceStatus(ctx, target.DeviceID)
	if err != nil {
		s.logger.Warn("post-command refresh failed",
			"device_id", target.DeviceID, "error", err)
		return CommandResult{Status: CommandOK}
	}
	s.applyStatus(target.DeviceID, status)

	return CommandResult{Status: CommandOK}
}

// ExecuteScene triggers a scene by ID.
func (s *Session) ExecuteScene(ctx context.Context, sceneID string) error {
	if err := s.client.ExecuteScene(ctx, sceneID); err != nil {
		return fmt.Errorf("executing scene: %w", err)
	}
	s.logger.Info("scene executed", "scene_id", sceneID)
	return nil
}

// SetMode switches the location mode.
func (s *Session) SetMode(ctx context.Context, modeID string) error {
	if err := s.client.SetMode(ctx, s.cfg.SmartThings.LocationID, modeID); err != nil {
		return fmt.Errorf("setting mode: %w", err)
	}
	s.logger.Info("mode set", "mode_id", modeID)
	return nil
}

// rebuildEntitiesLocked rebuilds the entity table from the current
// device list, carrying over attribute values of entities that survive
// the rebuild. Caller holds s.mu.
func (s *Session) rebuildEntitiesLocked() {
	previous := s.entities
	s.entities = make(map[string]*entity.Entity)

	for _, device := range s.devices {
		roomName := s.rooms[device.RoomID]
		for _, e := range entity.Build(device, roomName, s.cfg.Entities) {
			if old, ok := previous[e.ID]; ok {
				for attr, value := range old.Attributes {
					if _, known := e.Attributes[attr]; known {
						e.Attributes[attr] = value
					}
				}
			}
			s.entities[e.ID] = e
		}
	}
}

// filterAllowed applies the device allow list. An empty list admits
// every device.
func (s *Session) filterAllowed(devices []smartthings.Device) []smartthings.Device {
	allow := s.cfg.Entities.DeviceAllowList
	if len(allow) == 0 {
		return devices
	}

	allowed := make(map[string]bool, len(allow))
	for _, id := range allow {
		allowed[id] = true
	}

	filtered := devices[:0:0]
	for _, d := range devices {
		if allowed[d.DeviceID] {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

// setState transitions the session state and emits a state event when
// it actually changed.
func (s *Session) setState(next State) {
	s.mu.Lock()
	changed := s.state != next
	s.state = next
	s.mu.Unlock()

	if changed {
		s.logger.Info("session state changed", "state", string(next))
		s.emit(newStateEvent(next))
	}
}

// emit sends an event without blocking. A full buffer drops the event
// with a warning; a slow consumer must not stall polling. Events after
// Disconnect are discarded.
func (s *Session) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event buffer full, dropping event",
			"type", string(ev.Type), "entity_id", ev.EntityID)
	}
}
