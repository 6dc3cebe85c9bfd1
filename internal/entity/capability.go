package entity

import (
	"github.com/nerrad567/stbridge/internal/smartthings"
)

// CapabilitySet is an ordered, de-duplicated set of capability IDs.
//
// Order matters: capabilities are recorded in first-seen order across a
// device's components, with the main component first. Duplicate IDs from
// later components are dropped (first occurrence wins).
type CapabilitySet struct {
	order []string
	index map[string]struct{}
}

// NewCapabilitySet builds a set from capability IDs, preserving order
// and dropping duplicates.
func NewCapabilitySet(ids ...string) *CapabilitySet {
	s := &CapabilitySet{
		index: make(map[string]struct{}, len(ids)),
	}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// ExtractCapabilities collects a device's capability IDs across all
// components. The main component is walked first so its capabilities
// take precedence in ordering.
func ExtractCapabilities(device smartthings.Device) *CapabilitySet {
	s := NewCapabilitySet()

	for _, component := range device.Components {
		if component.ID == "main" {
			for _, ref := range component.Capabilities {
				s.Add(ref.ID)
			}
		}
	}
	for _, component := range device.Components {
		if component.ID == "main" {
			continue
		}
		for _, ref := range component.Capabilities {
			s.Add(ref.ID)
		}
	}

	return s
}

// Add inserts a capability ID unless already present.
func (s *CapabilitySet) Add(id string) {
	if id == "" {
		return
	}
	if _, ok := s.index[id]; ok {
		return
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
}

// Has reports whether the set contains a capability.
func (s *CapabilitySet) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// HasAny reports whether the set contains at least one of the given
// capabilities.
func (s *CapabilitySet) HasAny(ids ...string) bool {
	for _, id := range ids {
		if s.Has(id) {
			return true
		}
	}
	return false
}

// HasAll reports whether the set contains every one of the given
// capabilities.
func (s *CapabilitySet) HasAll(ids ...string) bool {
	for _, id := range ids {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// List returns the capability IDs in first-seen order. The slice is a
// copy; callers may mutate it freely.
func (s *CapabilitySet) List() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of distinct capabilities.
func (s *CapabilitySet) Len() int {
	return len(s.order)
}
