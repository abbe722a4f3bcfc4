package handoff

const (
	minPageSize = 2
	maxPageSize = 128

	// defaultAvgRowSize is the average row size every session assumes when
	// sizing a page; no observed row or column statistics are used.
	defaultAvgRowSize = 1024
)

// calculatePageSize sizes a page so that pageSize*avgRowSize stays under the
// configured in-memory compaction budget, clamped to [minPageSize,
// maxPageSize] so a single page is never too small to make progress or too
// large to hold in memory at once.
func calculatePageSize(compactionLimitBytes int64, avgRowSize int) int {
	if avgRowSize <= 0 {
		avgRowSize = defaultAvgRowSize
	}
	size := int(compactionLimitBytes / int64(avgRowSize))
	if size < minPageSize {
		size = minPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return size
}
