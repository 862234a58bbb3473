package app

import (
	"errors"
	"sort"

	"heimdall/internal/domain"
)

var (
	// ErrSessionActive is returned when a session starts while another is collecting.
	ErrSessionActive = errors.New("notification session already active")
	// ErrNoSession is returned when a session ends without being started.
	ErrNoSession = errors.New("no notification session active")
)

// Session collects due events of one sweep for batched delivery.
// Params: Idle -> Collecting -> Idle state with pending alerts and resolutions.
// Returns: grouped events on End.
type Session struct {
	collecting  bool
	alerts      []domain.Event
	resolutions []domain.Event
}

// Start moves the session to Collecting.
func (s *Session) Start() error {
	if s.collecting {
		return ErrSessionActive
	}
	s.collecting = true
	s.alerts = nil
	s.resolutions = nil
	return nil
}

// Collecting reports whether events are being buffered.
func (s *Session) Collecting() bool {
	return s.collecting
}

// Add buffers one event.
// Returns: false when the session is idle and the caller must send immediately.
func (s *Session) Add(event domain.Event) bool {
	if !s.collecting {
		return false
	}
	if event.Kind == domain.KindResolved {
		s.resolutions = append(s.resolutions, event)
	} else {
		s.alerts = append(s.alerts, event)
	}
	return true
}

// End returns buffered events and moves the session back to Idle.
// Returns: alert events (new before recurring), resolution events, or ErrNoSession.
func (s *Session) End() ([]domain.Event, []domain.Event, error) {
	if !s.collecting {
		return nil, nil, ErrNoSession
	}
	alerts, resolutions := s.alerts, s.resolutions
	s.collecting = false
	s.alerts = nil
	s.resolutions = nil

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Kind == domain.KindNew && alerts[j].Kind != domain.KindNew
	})
	return alerts, resolutions, nil
}
