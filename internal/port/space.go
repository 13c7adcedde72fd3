package port

// SpaceCheckResult contains detailed space availability information
type SpaceCheckResult struct {
	HasSpace          bool
	RequiredBytes     int64
	FreeBytes         uint64
	MinFreeBytes      int64
	DiskUsedPct       float64
	LimitedByMinFree  bool
	PartialBytesSaved int64
}

// SpaceManager defines the interface for space management operations
type SpaceManager interface {
	// CheckSpace checks whether a download of the given size fits while
	// keeping the configured minimum free space
	CheckSpace(dest string, size int64) (*SpaceCheckResult, error)
}
