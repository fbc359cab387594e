package manifest

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/metastore/model"
)

// Manifest is the complete metadata record of one index.
type Manifest struct {
	Index model.IndexMetadata `json:"index"`
	// Splits is ordered by insertion.
	Splits []*model.SplitMetadata `json:"splits"`
	// Tombstone marks a manifest whose index is being deleted.
	Tombstone bool `json:"tombstone,omitempty"`
}

// New creates a manifest at version 0 for index.
func New(index model.IndexMetadata) *Manifest {
	m := &Manifest{Index: *index.Clone()}
	m.Index.Version = 0
	return m
}

// Version returns the manifest version.
func (m *Manifest) Version() uint64 {
	return m.Index.Version
}

// Bump advances the version and the update timestamp. It is called once per
// persisted mutation.
func (m *Manifest) Bump(now time.Time) {
	m.Index.Version++
	m.Index.UpdatedAt = now
}

// Clone returns a deep copy of m.
func (m *Manifest) Clone() *Manifest {
	c := &Manifest{
		Index:     *m.Index.Clone(),
		Splits:    make([]*model.SplitMetadata, len(m.Splits)),
		Tombstone: m.Tombstone,
	}
	for i, s := range m.Splits {
		c.Splits[i] = s.Clone()
	}
	return c
}

// IsEmpty reports whether the catalog holds no split.
func (m *Manifest) IsEmpty() bool {
	return len(m.Splits) == 0
}

// Split returns the split with the given id, or nil.
func (m *Manifest) Split(id string) *model.SplitMetadata {
	for _, s := range m.Splits {
		if s.SplitID == id {
			return s
		}
	}
	return nil
}

func (m *Manifest) positions() map[string]int {
	pos := make(map[string]int, len(m.Splits))
	for i, s := range m.Splits {
		pos[s.SplitID] = i
	}
	return pos
}

// StageSplits appends splits in the Staged state. Ids must be new to the
// catalog and unique within the batch.
func (m *Manifest) StageSplits(splits []model.SplitMetadata, now time.Time) error {
	pos := m.positions()
	seen := make(map[string]struct{}, len(splits))
	var dups []string
	for _, s := range splits {
		_, exists := pos[s.SplitID]
		_, twice := seen[s.SplitID]
		if exists || twice {
			dups = append(dups, s.SplitID)
		}
		seen[s.SplitID] = struct{}{}
	}
	if len(dups) > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateSplit, strings.Join(dups, ", "))
	}

	for _, s := range splits {
		staged := s.Clone()
		staged.State = model.SplitStateStaged
		staged.CreatedAt = now
		staged.UpdatedAt = now
		staged.PublishedAt = nil
		staged.MarkedForDeletionAt = nil
		m.Splits = append(m.Splits, staged)
	}
	return nil
}

// PublishSplits moves stageIDs to Published and replacedIDs to
// MarkedForDeletion in one step. Either every transition applies or none.
func (m *Manifest) PublishSplits(stageIDs, replacedIDs []string, now time.Time) (bool, error) {
	stageIDs = dedup(stageIDs)
	replacedIDs = dedup(replacedIDs)
	if len(stageIDs) == 0 && len(replacedIDs) == 0 {
		return false, nil
	}

	pos := m.positions()
	if missing := absent(pos, stageIDs, replacedIDs); len(missing) > 0 {
		return false, fmt.Errorf("%w: %s", ErrSplitNotFound, strings.Join(missing, ", "))
	}

	var invalid []string
	for _, id := range stageIDs {
		if st := m.Splits[pos[id]].State; st != model.SplitStateStaged {
			invalid = append(invalid, fmt.Sprintf("%s (%s -> %s)", id, st, model.SplitStatePublished))
		}
	}
	for _, id := range replacedIDs {
		if st := m.Splits[pos[id]].State; st != model.SplitStatePublished {
			invalid = append(invalid, fmt.Sprintf("%s (%s -> %s)", id, st, model.SplitStateMarkedForDeletion))
		}
	}
	if len(invalid) > 0 {
		return false, fmt.Errorf("%w: %s", ErrInvalidStateTransition, strings.Join(invalid, ", "))
	}

	for _, id := range stageIDs {
		s := m.Splits[pos[id]]
		s.State = model.SplitStatePublished
		s.PublishedAt = timePtr(now)
		s.UpdatedAt = now
		if len(replacedIDs) > 0 {
			s.ReplacedSplitIDs = slices.Clone(replacedIDs)
		}
	}
	for _, id := range replacedIDs {
		markForDeletion(m.Splits[pos[id]], now)
	}
	return true, nil
}

// MarkSplitsForDeletion moves Staged and Published splits to
// MarkedForDeletion. Already marked splits are left unchanged.
func (m *Manifest) MarkSplitsForDeletion(ids []string, now time.Time) (bool, error) {
	ids = dedup(ids)
	pos := m.positions()
	if missing := absent(pos, ids); len(missing) > 0 {
		return false, fmt.Errorf("%w: %s", ErrSplitNotFound, strings.Join(missing, ", "))
	}

	changed := false
	for _, id := range ids {
		s := m.Splits[pos[id]]
		if s.State == model.SplitStateMarkedForDeletion {
			continue
		}
		markForDeletion(s, now)
		changed = true
	}
	return changed, nil
}

// DeleteSplits removes MarkedForDeletion splits from the catalog. Absent ids
// are ignored so an interrupted garbage collection cycle can be re-run.
func (m *Manifest) DeleteSplits(ids []string) (bool, error) {
	ids = dedup(ids)
	pos := m.positions()

	drop := make(map[string]struct{}, len(ids))
	var invalid []string
	for _, id := range ids {
		i, ok := pos[id]
		if !ok {
			continue
		}
		if st := m.Splits[i].State; st != model.SplitStateMarkedForDeletion {
			invalid = append(invalid, fmt.Sprintf("%s (%s)", id, st))
			continue
		}
		drop[id] = struct{}{}
	}
	if len(invalid) > 0 {
		return false, fmt.Errorf("%w: cannot delete splits not marked for deletion: %s", ErrInvalidStateTransition, strings.Join(invalid, ", "))
	}
	if len(drop) == 0 {
		return false, nil
	}

	m.Splits = slices.DeleteFunc(m.Splits, func(s *model.SplitMetadata) bool {
		_, ok := drop[s.SplitID]
		return ok
	})
	return true, nil
}

// Reset removes every split regardless of state.
func (m *Manifest) Reset() bool {
	if len(m.Splits) == 0 {
		return false
	}
	m.Splits = nil
	return true
}

func markForDeletion(s *model.SplitMetadata, now time.Time) {
	s.State = model.SplitStateMarkedForDeletion
	s.MarkedForDeletionAt = timePtr(now)
	s.UpdatedAt = now
}

func absent(pos map[string]int, lists ...[]string) []string {
	var missing []string
	for _, ids := range lists {
		for _, id := range ids {
			if _, ok := pos[id]; !ok {
				missing = append(missing, id)
			}
		}
	}
	return missing
}

func dedup(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	return &t
}
