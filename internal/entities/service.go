package entities

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/hearth-home/hearth-backend-go/pkg/errors"
)

// Sink receives entity state changes as they land in the registry.
// The websocket hub and the persistence layer implement this.
type Sink interface {
	OnEntityUpdate(state State)
}

// Service is the in-memory registry of current entity states. Each
// integration's refresh cycle upserts its batch here; reads come from the
// API layer.
type Service struct {
	mu     sync.RWMutex
	states map[string]State
	sinks  []Sink
	logger *logrus.Logger
}

// NewService creates the entity registry
func NewService(logger *logrus.Logger) *Service {
	return &Service{
		states: make(map[string]State),
		logger: logger,
	}
}

// AddSink registers a change consumer. Not safe to call after refresh
// traffic has started; wire sinks during startup.
func (s *Service) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Upsert stores a batch of entity states and notifies sinks for every state
// whose value, availability, or attributes changed.
func (s *Service) Upsert(states []State) {
	now := time.Now()

	s.mu.Lock()
	changed := make([]State, 0, len(states))
	for _, state := range states {
		if state.UpdatedAt.IsZero() {
			state.UpdatedAt = now
		}
		prev, ok := s.states[state.ID]
		s.states[state.ID] = state
		if !ok || stateChanged(prev, state) {
			changed = append(changed, state)
		}
	}
	sinks := make([]Sink, len(s.sinks))
	copy(sinks, s.sinks)
	s.mu.Unlock()

	for _, state := range changed {
		for _, sink := range sinks {
			sink.OnEntityUpdate(state)
		}
	}

	if len(changed) > 0 {
		s.logger.WithField("changed", len(changed)).Debug("Entity states updated")
	}
}

// SetAvailability flips the available flag on every entity owned by an
// integration, leaving the last known values in place.
func (s *Service) SetAvailability(integrationID string, available bool) {
	s.mu.Lock()
	changed := make([]State, 0)
	for id, state := range s.states {
		if state.IntegrationID != integrationID || state.Available == available {
			continue
		}
		state.Available = available
		s.states[id] = state
		changed = append(changed, state)
	}
	sinks := make([]Sink, len(s.sinks))
	copy(sinks, s.sinks)
	s.mu.Unlock()

	for _, state := range changed {
		for _, sink := range sinks {
			sink.OnEntityUpdate(state)
		}
	}
}

// Get returns a single entity state by ID
func (s *Service) Get(id string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[id]
	if !ok {
		return State{}, apperrors.ErrNotFound
	}
	return state, nil
}

// List returns all entity states, sorted by ID for stable output
func (s *Service) List() []State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]State, 0, len(s.states))
	for _, state := range s.states {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByIntegration returns the states owned by one integration
func (s *Service) ListByIntegration(integrationID string) []State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]State, 0)
	for _, state := range s.states {
		if state.IntegrationID == integrationID {
			out = append(out, state)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func stateChanged(prev, next State) bool {
	if prev.Available != next.Available || prev.Value != next.Value || prev.Unit != next.Unit {
		return true
	}
	if len(prev.Attributes) != len(next.Attributes) {
		return true
	}
	for k, v := range next.Attributes {
		if prev.Attributes[k] != v {
			return true
		}
	}
	return false
}
