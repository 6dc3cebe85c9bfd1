// Package telemetry records numeric entity state in InfluxDB.
//
// The sink is optional: when disabled in configuration Connect returns
// ErrDisabled and the rest of the bridge runs without it. When enabled,
// entity-change events flow in from the session stream and every
// numeric attribute becomes a point in the entity_state measurement,
// tagged by entity, device, kind, class, and area.
//
// Writes are non-blocking and batched; async write failures surface
// through the SetOnError callback.
package telemetry
