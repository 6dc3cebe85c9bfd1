// Package entity maps SmartThings devices onto host-platform entities.
//
// The pipeline runs in four stages, each a pure function:
//
//  1. Capability extraction: a device's components collapse into an
//     ordered, de-duplicated CapabilitySet.
//  2. Resolution: fixed-priority rules assign a primary Kind, and sensor
//     classes are detected independently.
//  3. Building: Build produces Entity skeletons with features and
//     initial attributes derived from the capability set.
//  4. Translation and command mapping: Translate converts raw status
//     payloads into attribute values; MapCommand converts normalized
//     commands into ordered capability calls.
//
// The Kind tag assigned at build time is the single source of truth for
// what an entity is. Nothing downstream re-derives the kind from
// capabilities.
package entity
