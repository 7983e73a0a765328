package elevation

import (
	"slices"

	"go.ngs.io/elevation-api/internal/domain"
)

// Observer receives configuration changes. It runs on the goroutine that
// made the change, after the change completed.
type Observer func(domain.ChangeEvent)

type observerEntry struct {
	id uint64
	fn Observer
}

// Subscribe registers o and returns a func that removes it.
func (s *Service) Subscribe(o Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers = append(s.observers, observerEntry{id: id, fn: o})
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		s.observers = slices.DeleteFunc(s.observers, func(e observerEntry) bool { return e.id == id })
	}
}

func (s *Service) notify(ev domain.ChangeEvent) {
	ev.DefaultHeight = s.DefaultHeight()

	s.obsMu.Lock()
	observers := slices.Clone(s.observers)
	s.obsMu.Unlock()

	for _, o := range observers {
		o.fn(ev)
	}
}
