package objgraph

import "fmt"

// Stats counts what a channel has transferred. It is meant for tests and
// diagnostics; the counters are not part of the stream.
type Stats struct {
	Nulls    int
	Inline   int
	Detached int
	Fetched  int

	// BackRefs counts back-references by width: 8, 16, 32 and 64 bits.
	BackRefs [4]int

	CatalogEntries int
}

func (s *Stats) countBackRef(disc byte) {
	switch disc {
	case discIndexed8:
		s.BackRefs[0]++
	case discIndexed16:
		s.BackRefs[1]++
	case discIndexed32:
		s.BackRefs[2]++
	case discIndexed64:
		s.BackRefs[3]++
	}
}

func (s Stats) TotalBackRefs() int {
	return s.BackRefs[0] + s.BackRefs[1] + s.BackRefs[2] + s.BackRefs[3]
}

func (s Stats) String() string {
	return fmt.Sprintf("nulls=%d inline=%d detached=%d fetched=%d backrefs=%d/%d/%d/%d catalog=%d",
		s.Nulls, s.Inline, s.Detached, s.Fetched,
		s.BackRefs[0], s.BackRefs[1], s.BackRefs[2], s.BackRefs[3], s.CatalogEntries)
}
