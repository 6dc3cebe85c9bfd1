package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/stbridge/internal/smartthings"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func TestStore_DeviceRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	devices := []smartthings.Device{
		{
			DeviceID: "dev-1",
			Label:    "Desk Lamp",
			RoomID:   "room-1",
			Components: []smartthings.Component{
				{ID: "main", Capabilities: []smartthings.CapabilityReference{
					{ID: "switch"}, {ID: "switchLevel"},
				}},
			},
		},
		{DeviceID: "dev-2", Name: "sensor"},
	}

	if err := s.SaveDevices(ctx, devices); err != nil {
		t.Fatalf("SaveDevices() error = %v", err)
	}

	loaded, err := s.LoadDevices(ctx)
	if err != nil {
		t.Fatalf("LoadDevices() error = %v", err)
	}

	if len(loaded) != 2 {
		t.Fatalf("got %d devices, want 2", len(loaded))
	}
	if loaded[0].DeviceID != "dev-1" || loaded[0].Label != "Desk Lamp" {
		t.Errorf("loaded[0] = %+v, want dev-1/Desk Lamp", loaded[0])
	}
	if len(loaded[0].Components) != 1 || len(loaded[0].Components[0].Capabilities) != 2 {
		t.Errorf("components did not survive round-trip: %+v", loaded[0].Components)
	}
}

func TestStore_EmptyLoad(t *testing.T) {
	s := openTestStore(t)

	devices, err := s.LoadDevices(context.Background())
	if err != nil {
		t.Fatalf("LoadDevices() on empty store error = %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("got %d devices from empty store, want 0", len(devices))
	}
}

func TestStore_SaveReplacesWholesale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := []smartthings.Device{
		{DeviceID: "dev-1"},
		{DeviceID: "dev-2"},
	}
	if err := s.SaveDevices(ctx, first); err != nil {
		t.Fatalf("SaveDevices() error = %v", err)
	}

	// dev-2 disappears from the cloud; the store must follow.
	second := []smartthings.Device{
		{DeviceID: "dev-1"},
		{DeviceID: "dev-3"},
	}
	if err := s.SaveDevices(ctx, second); err != nil {
		t.Fatalf("SaveDevices() replace error = %v", err)
	}

	loaded, err := s.LoadDevices(ctx)
	if err != nil {
		t.Fatalf("LoadDevices() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("got %d devices, want 2", len(loaded))
	}
	for _, d := range loaded {
		if d.DeviceID == "dev-2" {
			t.Error("removed device dev-2 still present after replace")
		}
	}
}

func TestStore_RoomRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rooms := []smartthings.Room{
		{RoomID: "room-1", Name: "Office"},
		{RoomID: "room-2", Name: "Kitchen"},
	}
	if err := s.SaveRooms(ctx, rooms); err != nil {
		t.Fatalf("SaveRooms() error = %v", err)
	}

	loaded, err := s.LoadRooms(ctx)
	if err != nil {
		t.Fatalf("LoadRooms() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("got %d rooms, want 2", len(loaded))
	}
	// Ordered by name.
	if loaded[0].Name != "Kitchen" || loaded[1].Name != "Office" {
		t.Errorf("rooms = %v, want name order", loaded)
	}
}

func TestStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshots.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.SaveDevices(ctx, []smartthings.Device{{DeviceID: "dev-1"}}); err != nil {
		t.Fatalf("SaveDevices() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.LoadDevices(ctx)
	if err != nil {
		t.Fatalf("LoadDevices() after reopen error = %v", err)
	}
	if len(loaded) != 1 || loaded[0].DeviceID != "dev-1" {
		t.Errorf("loaded = %v, want dev-1 to survive reopen", loaded)
	}
}
