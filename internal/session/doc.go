// Package session coordinates one SmartThings connection end to end.
//
// A Session owns discovery, entity construction, the status polling
// loop, command dispatch, and the outbound event stream. State moves
// Disconnected → Connecting → Connected; poll failures push it to Error
// until a cycle succeeds again, and Disconnect returns it to
// Disconnected idempotently.
//
// Events flow out through a single buffered channel in the order they
// occur. The session never calls back into its consumers: anything
// interested in entity changes (the API hub, the MQTT mirror, the
// telemetry sink) reads the channel.
//
// Dependencies are narrow interfaces (Client, SnapshotStore, Logger)
// so tests drive the session with scripted fakes.
package session
