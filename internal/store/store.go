package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/stbridge/internal/smartthings"
)

const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// busyTimeout is the maximum wait for a database lock.
	busyTimeout = 5 * time.Second
)

// schema holds device and room snapshots from the last successful
// discovery. Payloads are stored as raw JSON so schema changes in the
// cloud API never require a migration here.
const schema = `
CREATE TABLE IF NOT EXISTS devices (
	device_id  TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rooms (
	room_id    TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store persists device and room snapshots between runs so entities can
// be rebuilt before the first cloud round-trip completes.
//
// Thread Safety:
//   - All methods are safe for concurrent use; SQLite serialises writes
//     through the single-connection pool.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the snapshot store at the given path. The parent
// directory is created when missing and the schema applied idempotently.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	// SQLite supports one writer; keep the pool at a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying store connection: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying store schema: %w", err)
	}

	// Owner read/write only; ignore failure on first run before the
	// file exists.
	_ = os.Chmod(path, filePermissions)

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}

// Path returns the filesystem path of the store.
func (s *Store) Path() string {
	return s.path
}

// SaveDevices replaces the stored device snapshot wholesale. Devices no
// longer reported by the cloud disappear from the store, matching the
// discovery result exactly.
func (s *Store) SaveDevices(ctx context.Context, devices []smartthings.Device) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting device save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM devices"); err != nil {
		return fmt.Errorf("clearing devices: %w", err)
	}

	now := time.Now().Unix()
	for _, device := range devices {
		payload, err := json.Marshal(device)
		if err != nil {
			return fmt.Errorf("encoding device %s: %w", device.DeviceID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO devices (device_id, payload, updated_at) VALUES (?, ?, ?)",
			device.DeviceID, string(payload), now,
		); err != nil {
			return fmt.Errorf("inserting device %s: %w", device.DeviceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device save: %w", err)
	}
	return nil
}

// LoadDevices returns the stored device snapshot. An empty store yields
// an empty slice and no error.
func (s *Store) LoadDevices(ctx context.Context) ([]smartthings.Device, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM devices ORDER BY device_id")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []smartthings.Device
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}

		var device smartthings.Device
		if err := json.Unmarshal([]byte(payload), &device); err != nil {
			return nil, fmt.Errorf("decoding stored device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// SaveRooms replaces the stored room snapshot wholesale.
func (s *Store) SaveRooms(ctx context.Context, rooms []smartthings.Room) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting room save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM rooms"); err != nil {
		return fmt.Errorf("clearing rooms: %w", err)
	}

	now := time.Now().Unix()
	for _, room := range rooms {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rooms (room_id, name, updated_at) VALUES (?, ?, ?)",
			room.RoomID, room.Name, now,
		); err != nil {
			return fmt.Errorf("inserting room %s: %w", room.RoomID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing room save: %w", err)
	}
	return nil
}

// LoadRooms returns the stored room snapshot.
func (s *Store) LoadRooms(ctx context.Context) ([]smartthings.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT room_id, name FROM rooms ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var rooms []smartthings.Room
	for rows.Next() {
		var room smartthings.Room
		if err := rows.Scan(&room.RoomID, &room.Name); err != nil {
			return nil, fmt.Errorf("scanning room row: %w", err)
		}
		rooms = append(rooms, room)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rooms: %w", err)
	}
	return rooms, nil
}
