package model

// ListSplitsQuery filters the splits returned by a listing.
// The zero value matches every split.
type ListSplitsQuery struct {
	// States restricts the result to the given states. Empty means all states.
	States []SplitState
	// TimeRange keeps splits whose time range overlaps it.
	// Splits without a time range always match.
	TimeRange *TimeRange
	// Tags keeps splits carrying every given tag.
	Tags []string
}

// WithStates returns a query matching the given states.
func WithStates(states ...SplitState) ListSplitsQuery {
	return ListSplitsQuery{States: states}
}

// FileEntry describes a split file removed (or to be removed) by the garbage collector.
type FileEntry struct {
	SplitID   string `json:"split_id"`
	FileName  string `json:"file_name"`
	SizeBytes uint64 `json:"size_bytes"`
}
