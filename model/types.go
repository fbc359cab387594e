package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// SplitState is the lifecycle state of a split.
type SplitState string

const (
	// SplitStateStaged is the initial state. Staged splits are not searchable.
	SplitStateStaged SplitState = "Staged"
	// SplitStatePublished splits are part of the queryable index.
	SplitStatePublished SplitState = "Published"
	// SplitStateMarkedForDeletion splits wait for the garbage collector.
	SplitStateMarkedForDeletion SplitState = "MarkedForDeletion"
)

// Valid reports whether s is a known state.
func (s SplitState) Valid() bool {
	switch s {
	case SplitStateStaged, SplitStatePublished, SplitStateMarkedForDeletion:
		return true
	}
	return false
}

// ParseSplitState parses a state name (case sensitive).
func ParseSplitState(s string) (SplitState, error) {
	st := SplitState(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown split state %q", s)
	}
	return st, nil
}

// TimeRange is an inclusive range of timestamps.
type TimeRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Overlaps reports whether r and o share at least one timestamp.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

// String returns a string representation of the TimeRange.
func (r TimeRange) String() string {
	return fmt.Sprintf("[%d..=%d]", r.Start, r.End)
}

// ByteRange is a half-open [Start, End) byte range.
type ByteRange struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// IndexMetadata describes an index.
type IndexMetadata struct {
	IndexID string `json:"index_id" validate:"required,index_id"`
	// IndexURI is the storage root of the index's split files.
	IndexURI string `json:"index_uri,omitempty"`
	// Config is the document mapping configuration. It is opaque to the metastore.
	Config    json.RawMessage `json:"config,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	// Version is the manifest version the metadata was read at.
	Version uint64 `json:"version"`
}

// Clone returns a deep copy of m.
func (m *IndexMetadata) Clone() *IndexMetadata {
	if m == nil {
		return nil
	}
	c := *m
	c.Config = slices.Clone(m.Config)
	return &c
}

// SplitMetadata describes one split.
type SplitMetadata struct {
	SplitID   string     `json:"split_id" validate:"required,max=255"`
	TimeRange *TimeRange `json:"time_range,omitempty"`
	NumDocs   uint64     `json:"num_docs"`
	SizeBytes uint64     `json:"size_bytes"`
	// Location is understood only by the storage client.
	Location string     `json:"location"`
	State    SplitState `json:"state"`

	Tags             []string   `json:"tags,omitempty"`
	ReplacedSplitIDs []string   `json:"replaced_split_ids,omitempty"`
	FooterOffsets    *ByteRange `json:"footer_offsets,omitempty"`

	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	PublishedAt         *time.Time `json:"published_at,omitempty"`
	MarkedForDeletionAt *time.Time `json:"marked_for_deletion_at,omitempty"`
}

// Clone returns a deep copy of s.
func (s *SplitMetadata) Clone() *SplitMetadata {
	if s == nil {
		return nil
	}
	c := *s
	if s.TimeRange != nil {
		tr := *s.TimeRange
		c.TimeRange = &tr
	}
	if s.FooterOffsets != nil {
		fo := *s.FooterOffsets
		c.FooterOffsets = &fo
	}
	c.Tags = slices.Clone(s.Tags)
	c.ReplacedSplitIDs = slices.Clone(s.ReplacedSplitIDs)
	c.PublishedAt = cloneTime(s.PublishedAt)
	c.MarkedForDeletionAt = cloneTime(s.MarkedForDeletionAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
