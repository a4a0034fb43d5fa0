package devstate

import (
	"sort"
	"sync"
)

// DeviceState tracks what the pipeline last saw and last persisted for one
// device. The maps only grow for the life of the process; ChangedThisEvent is
// cleared and repopulated once per event. All mutation happens through
// Store.Mutate, which serializes access per store.
type DeviceState struct {
	LastSeen         map[string]float64
	LastStored       map[string]float64
	ChangedThisEvent map[string]struct{}
}

// BeginEvent resets the per-event change set.
func (s *DeviceState) BeginEvent() {
	s.ChangedThisEvent = make(map[string]struct{})
}

// Store is the process-wide registry of device states, owned by the pipeline
// instance. In-memory only: a restart is equivalent to a first sighting for
// every device.
type Store struct {
	mu      sync.Mutex
	devices map[string]*DeviceState
}

func NewStore() *Store {
	return &Store{
		devices: make(map[string]*DeviceState),
	}
}

// Mutate runs fn with the device's state under the store lock, creating the
// state on first sighting (first=true). The read-decide-write sequence of the
// delta comparison must stay inside fn to be race-free across batches.
func (s *Store) Mutate(deviceID string, fn func(state *DeviceState, first bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.devices[deviceID]
	if !ok {
		state = &DeviceState{
			LastSeen:   make(map[string]float64),
			LastStored: make(map[string]float64),
		}
		s.devices[deviceID] = state
	}

	fn(state, !ok)
}

// Known returns the identifiers of every device seen so far, sorted for
// deterministic reconciliation order.
func (s *Store) Known() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of devices seen so far.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}

// LastSeen returns the last observed value for (deviceID, parameter).
func (s *Store) LastSeen(deviceID, parameter string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.devices[deviceID]
	if !ok {
		return 0, false
	}
	v, ok := state.LastSeen[parameter]
	return v, ok
}

// LastStored returns the last persisted value for (deviceID, parameter).
func (s *Store) LastStored(deviceID, parameter string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.devices[deviceID]
	if !ok {
		return 0, false
	}
	v, ok := state.LastStored[parameter]
	return v, ok
}
