package objgraph

const renameTableStep = 256

// Rename maps an identity written by versions [Low, High) of the stream
// application at index App to the identity the class has now. A class that
// was renamed twice has two entries with disjoint ranges.
type Rename struct {
	Old  ClassID
	New  ClassID
	App  int
	Low  uint32
	High uint32
}

func (r Rename) appliesTo(apps []AppVersion) bool {
	if r.App < 0 || r.App >= len(apps) {
		return false
	}
	v := apps[r.App].Version
	return v >= r.Low && v < r.High
}

type RenameTable struct {
	entries []Rename
}

func (t *RenameTable) Add(r Rename) {
	t.entries, _ = reserve(t.entries, 1, renameTableStep, 0)
	t.entries = append(t.entries, r)
}

func (t *RenameTable) Len() int {
	return len(t.entries)
}

func (t *RenameTable) Entries() []Rename {
	return append([]Rename(nil), t.entries...)
}

// Active returns the renames in effect for a stream carrying the given
// application versions. Channels call it once when a stream is opened.
func (t *RenameTable) Active(apps []AppVersion) map[ClassID]ClassID {
	var m map[ClassID]ClassID
	for _, r := range t.entries {
		if !r.appliesTo(apps) {
			continue
		}
		if m == nil {
			m = make(map[ClassID]ClassID)
		}
		m[r.Old] = r.New
	}
	return m
}
