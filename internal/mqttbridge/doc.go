// Package mqttbridge mirrors entity state onto an MQTT broker.
//
// The mirror is optional: when disabled in configuration Connect
// returns ErrDisabled and the bridge runs without it. When enabled,
// every entity-change event is published as retained JSON to
// <prefix>/entity/<entity_id>/state, and the bridge announces its own
// availability on <prefix>/bridge/status with a last-will message for
// unexpected disconnects.
//
// Retained publishes mean a consumer joining the broker late sees the
// current state of every entity immediately, without waiting for the
// next change.
package mqttbridge
