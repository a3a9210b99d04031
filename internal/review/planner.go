package review

// PlanRanges splits a sequence of total elements into splitCount contiguous
// ranges, widening each by overlap toward its neighbours. The ranges always
// start at 0 and the last one always ends at total. Degenerate input yields
// the single range {0,0}.
func PlanRanges(total, splitCount, overlap int) []ChunkRange {
	if total <= 0 || splitCount <= 0 {
		return []ChunkRange{{Start: 0, End: 0}}
	}
	if overlap < 0 {
		overlap = 0
	}

	base := (total + splitCount - 1) / splitCount
	ranges := make([]ChunkRange, 0, splitCount)
	for i := 0; i < splitCount; i++ {
		start := min(i*base, total)
		end := min((i+1)*base, total)

		if i > 0 {
			start = max(start-overlap, 0)
		}
		if i < splitCount-1 {
			end = min(end+overlap, total)
		}

		// Never leave a gap behind the previous range, and never re-read
		// more than overlap elements of it.
		if i > 0 {
			prev := ranges[i-1]
			start = min(max(start, prev.End-overlap), total)
		}
		if end < start {
			end = start
		}
		ranges = append(ranges, ChunkRange{Start: start, End: end})
	}
	ranges[len(ranges)-1].End = total
	return ranges
}

// sliceDocument returns the part of doc covered by r.
func sliceDocument(doc Document, r ChunkRange) Document {
	part := Document{ID: doc.ID, Name: doc.Name}
	if doc.IsImage() {
		part.Images = doc.Images[r.Start:r.End]
		return part
	}
	runes := []rune(doc.Text)
	part.Text = string(runes[r.Start:r.End])
	return part
}
