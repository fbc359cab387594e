package manifest

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/metastore/model"
)

// postings maps split states and tags to the catalog positions carrying them.
type postings struct {
	all    *roaring.Bitmap
	states map[model.SplitState]*roaring.Bitmap
	tags   map[string]*roaring.Bitmap
}

func buildPostings(splits []*model.SplitMetadata) *postings {
	p := &postings{
		all:    roaring.New(),
		states: make(map[model.SplitState]*roaring.Bitmap, 3),
		tags:   make(map[string]*roaring.Bitmap),
	}
	if len(splits) > 0 {
		p.all.AddRange(0, uint64(len(splits)))
	}
	for i, s := range splits {
		pos := uint32(i)
		bm, ok := p.states[s.State]
		if !ok {
			bm = roaring.New()
			p.states[s.State] = bm
		}
		bm.Add(pos)
		for _, tag := range s.Tags {
			tb, ok := p.tags[tag]
			if !ok {
				tb = roaring.New()
				p.tags[tag] = tb
			}
			tb.Add(pos)
		}
	}
	return p
}

// candidates returns the positions matching the state and tag predicates.
func (p *postings) candidates(q model.ListSplitsQuery) *roaring.Bitmap {
	var result *roaring.Bitmap
	if len(q.States) == 0 {
		result = p.all.Clone()
	} else {
		result = roaring.New()
		for _, st := range q.States {
			if bm, ok := p.states[st]; ok {
				result.Or(bm)
			}
		}
	}
	for _, tag := range q.Tags {
		tb, ok := p.tags[tag]
		if !ok {
			return roaring.New()
		}
		result.And(tb)
	}
	return result
}

// ListSplits returns copies of the splits matching q in insertion order.
func (m *Manifest) ListSplits(q model.ListSplitsQuery) []model.SplitMetadata {
	matches := buildPostings(m.Splits).candidates(q)

	out := make([]model.SplitMetadata, 0, matches.GetCardinality())
	it := matches.Iterator()
	for it.HasNext() {
		s := m.Splits[it.Next()]
		if q.TimeRange != nil && s.TimeRange != nil && !s.TimeRange.Overlaps(*q.TimeRange) {
			continue
		}
		out = append(out, *s.Clone())
	}
	return out
}
