package merge

import "github.com/nidx/nidx/internal/catalog"

// Params bounds one merge pass: how much work a single merge may take on,
// how many small segments must accumulate before it's worth running, and
// how many tombstones are tolerated before a merge is forced regardless of
// segment count.
type Params struct {
	MaxNodesInMerge       int
	SegmentsBeforeMerge   int
	MaximumDeletedEntries int
}

// SelectSegments picks which segment IDs to merge next for one index, given
// its live segments in catalog order, their node counts, and how many
// delete-log entries currently apply. It returns nil when no merge is due.
//
// Primary rule: the longest prefix of segments whose cumulative node count
// stays within MaxNodesInMerge, provided that prefix has at least
// SegmentsBeforeMerge segments. Fallback: if the delete log has grown past
// MaximumDeletedEntries, merge the oldest two segments regardless of size,
// to bound how much dead weight a cut has to skip over.
func SelectSegments(segments []catalog.SegmentRef, nodeCounts map[string]uint64, deleteLogEntries int, params Params) []string {
	best := -1
	var total uint64
	for i, s := range segments {
		total += nodeCounts[s.ID]
		if total > uint64(params.MaxNodesInMerge) {
			break
		}
		if i+1 >= params.SegmentsBeforeMerge {
			best = i
		}
	}
	if best >= 0 {
		ids := make([]string, best+1)
		for i := 0; i <= best; i++ {
			ids[i] = segments[i].ID
		}
		return ids
	}

	if deleteLogEntries > params.MaximumDeletedEntries && len(segments) >= 2 {
		return []string{segments[0].ID, segments[1].ID}
	}
	return nil
}
