package bracket

import "container/list"

// entrySet is an insertion-ordered set of entries keyed by ID.
type entrySet struct {
	order *list.List
	index map[string]*list.Element
}

func newEntrySet() *entrySet {
	return &entrySet{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// add appends e. Returns false, leaving the set untouched, if the ID is taken.
func (s *entrySet) add(e Entry) bool {
	if _, ok := s.index[e.ID]; ok {
		return false
	}
	s.index[e.ID] = s.order.PushBack(e)
	return true
}

func (s *entrySet) remove(id string) (Entry, bool) {
	el, ok := s.index[id]
	if !ok {
		return Entry{}, false
	}
	delete(s.index, id)
	return s.order.Remove(el).(Entry), true
}

func (s *entrySet) get(id string) (Entry, bool) {
	el, ok := s.index[id]
	if !ok {
		return Entry{}, false
	}
	return el.Value.(Entry), true
}

// update replaces the stored entry with the same ID, keeping its position.
func (s *entrySet) update(e Entry) bool {
	el, ok := s.index[e.ID]
	if !ok {
		return false
	}
	el.Value = e
	return true
}

func (s *entrySet) len() int {
	return s.order.Len()
}

// entries returns a copy in insertion order.
func (s *entrySet) entries() []Entry {
	out := make([]Entry, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(Entry))
	}
	return out
}

func (s *entrySet) front() (Entry, bool) {
	el := s.order.Front()
	if el == nil {
		return Entry{}, false
	}
	return el.Value.(Entry), true
}
