// Package selection holds the authoritative selected week.
//
// A Store is not synchronized. It is owned by a single loop (the session
// event loop, or the terminal player's update function) and every read and
// write happens there.
package selection

// Store holds the selected week, clamped into [0, totalWeeks-1], and notifies
// subscribers when it changes.
type Store struct {
	selected   int
	totalWeeks int
	subs       []subscriber
	nextID     int
}

type subscriber struct {
	id int
	fn func(week int)
}

// NewStore creates a Store with week 0 selected.
func NewStore(totalWeeks int) *Store {
	return &Store{totalWeeks: totalWeeks}
}

// Selected returns the last stored week.
func (s *Store) Selected() int { return s.selected }

// TotalWeeks returns the exclusive upper bound for selection.
func (s *Store) TotalWeeks() int { return s.totalWeeks }

// Set clamps week into range, stores it, and returns the stored value.
// Subscribers are notified only when the stored value changes.
func (s *Store) Set(week int) int {
	week = s.clamp(week)
	if week == s.selected {
		return week
	}
	s.selected = week

	// Copy so subscribers may unsubscribe while being notified.
	subs := append([]subscriber(nil), s.subs...)
	for _, sub := range subs {
		sub.fn(week)
	}
	return week
}

// Subscribe registers fn for change notifications, in subscription order.
// The returned function removes the subscription and is safe to call more
// than once.
func (s *Store) Subscribe(fn func(week int)) (cancel func()) {
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) clamp(week int) int {
	last := s.totalWeeks - 1
	if last < 0 {
		last = 0
	}
	switch {
	case week < 0:
		return 0
	case week > last:
		return last
	default:
		return week
	}
}
