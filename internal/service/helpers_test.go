package service

import (
	"slices"
	"sync"

	"github.com/immxrtalbeast/studyroom/internal/domain"
)

// recordingSink collects every event delivered to one connection.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	closed bool
}

func (s *recordingSink) Send(event domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.events = append(s.events, event)
	return true
}

func (s *recordingSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *recordingSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func (s *recordingSink) OfType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range s.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (s *recordingSink) Types() []domain.EventType {
	var out []domain.EventType
	for _, e := range s.Events() {
		out = append(out, e.Type)
	}
	return out
}

func (s *recordingSink) Reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

func (s *recordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
