package scene

import "sort"

// orphanTable parks records whose parent is not yet known, keyed by parent.
// There is no expiry: an orphan whose parent never arrives stays for the
// life of the session.
type orphanTable struct {
	byParent map[string][]Record
	ids      map[string]string // child id -> parent id
}

func newOrphanTable() *orphanTable {
	return &orphanTable{
		byParent: make(map[string][]Record),
		ids:      make(map[string]string),
	}
}

func (t *orphanTable) has(id string) bool {
	_, ok := t.ids[id]
	return ok
}

func (t *orphanTable) park(rec Record) {
	if t.has(rec.ID) {
		return
	}
	t.byParent[rec.Parent] = append(t.byParent[rec.Parent], rec)
	t.ids[rec.ID] = rec.Parent
}

func (t *orphanTable) take(parent string) []Record {
	recs := t.byParent[parent]
	delete(t.byParent, parent)
	for _, r := range recs {
		delete(t.ids, r.ID)
	}
	return recs
}

// remove drops a parked record and anything parked under it.
func (t *orphanTable) remove(id string, removed *[]string) {
	parent, ok := t.ids[id]
	if !ok {
		return
	}
	delete(t.ids, id)
	recs := t.byParent[parent]
	for i, r := range recs {
		if r.ID == id {
			recs = append(recs[:i], recs[i+1:]...)
			break
		}
	}
	if len(recs) == 0 {
		delete(t.byParent, parent)
	} else {
		t.byParent[parent] = recs
	}
	*removed = append(*removed, id)
	t.dropUnder(id, removed)
}

func (t *orphanTable) dropUnder(parent string, removed *[]string) {
	for _, child := range t.take(parent) {
		*removed = append(*removed, child.ID)
		t.dropUnder(child.ID, removed)
	}
}

func (t *orphanTable) parents() []string {
	out := make([]string, 0, len(t.byParent))
	for p := range t.byParent {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (t *orphanTable) len() int {
	return len(t.ids)
}

// ResolveOrphans creates every parked record whose parent now exists,
// repeating until no more can be placed. It returns the canonical records
// created, in creation order, so the caller can broadcast them.
func (s *Scene) ResolveOrphans() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var created []Record
	for {
		progressed := false
		for _, parent := range s.orphans.parents() {
			if _, ok := s.objects[parent]; !ok {
				continue
			}
			for _, rec := range s.orphans.take(parent) {
				out, outcome, err := s.apply(rec, true)
				if err != nil || outcome != Created {
					continue
				}
				created = append(created, out)
				progressed = true
			}
		}
		if !progressed {
			return created
		}
	}
}

// Orphans returns every parked record ordered by parent.
func (s *Scene) Orphans() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, parent := range s.orphans.parents() {
		out = append(out, s.orphans.byParent[parent]...)
	}
	return out
}

// OrphanCount returns the number of parked records.
func (s *Scene) OrphanCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orphans.len()
}
