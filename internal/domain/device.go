package domain

import "github.com/google/uuid"

// Device is an inventory entity: a stable identifier, a unique name, and a
// bag of vendor/OS/address attributes. Devices are immutable for the
// duration of a Run.
type Device struct {
	ID         uuid.UUID
	Name       string
	Vendor     string
	OS         string
	Address    string
	Attributes map[string]any
}

// DeviceSet is an insertion-ordered collection of Devices. Ordering matters:
// spec.md ties device iteration order to the insertion order produced by the
// DeviceResolver, and ServiceRunner retries must never re-run a device that
// already succeeded.
type DeviceSet struct {
	order []uuid.UUID
	byID  map[uuid.UUID]*Device
}

func NewDeviceSet() *DeviceSet {
	return &DeviceSet{byID: make(map[uuid.UUID]*Device)}
}

// Add appends d if not already present; a re-add of an existing id is a
// no-op (insertion order is preserved from the first Add).
func (s *DeviceSet) Add(d *Device) {
	if _, ok := s.byID[d.ID]; ok {
		return
	}
	s.order = append(s.order, d.ID)
	s.byID[d.ID] = d
}

// Remove drops d from the set.
func (s *DeviceSet) Remove(id uuid.UUID) {
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *DeviceSet) Contains(id uuid.UUID) bool {
	_, ok := s.byID[id]
	return ok
}

func (s *DeviceSet) Get(id uuid.UUID) (*Device, bool) {
	d, ok := s.byID[id]
	return d, ok
}

func (s *DeviceSet) Len() int { return len(s.order) }

// Devices returns the members in insertion order.
func (s *DeviceSet) Devices() []*Device {
	out := make([]*Device, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *DeviceSet) IDs() []uuid.UUID {
	out := make([]uuid.UUID, len(s.order))
	copy(out, s.order)
	return out
}

// Clone returns a shallow copy that can be mutated independently (used when
// propagating allowed-device sets along edges).
func (s *DeviceSet) Clone() *DeviceSet {
	clone := NewDeviceSet()
	for _, id := range s.order {
		clone.Add(s.byID[id])
	}
	return clone
}

// Union returns a new set containing the members of s and other.
func (s *DeviceSet) Union(other *DeviceSet) *DeviceSet {
	out := s.Clone()
	if other == nil {
		return out
	}
	for _, d := range other.Devices() {
		out.Add(d)
	}
	return out
}

// Equal reports whether two sets contain exactly the same device ids,
// regardless of order.
func (s *DeviceSet) Equal(other *DeviceSet) bool {
	if other == nil {
		return s == nil || s.Len() == 0
	}
	if s.Len() != other.Len() {
		return false
	}
	for _, id := range s.order {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}
