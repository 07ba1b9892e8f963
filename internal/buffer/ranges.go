package buffer

// Range is a half-open span of presentation time, in seconds.
type Range struct {
	Start float64
	End   float64
}

// Length returns the span's duration, never negative.
func (r Range) Length() float64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// TimeRanges is an ordered, non-overlapping list of buffered spans, the
// shape media buffers report their contents in.
type TimeRanges []Range

// mergeSlack absorbs sub-frame gaps between adjacent segments so they are
// reported as one continuous range.
const mergeSlack = 1e-3

// Add returns a new TimeRanges with r merged in, coalescing any ranges it
// touches or overlaps. The receiver is not modified.
func (t TimeRanges) Add(r Range) TimeRanges {
	if r.Length() == 0 && r.Start == 0 && r.End == 0 {
		return t
	}
	out := make(TimeRanges, 0, len(t)+1)
	inserted := false
	for _, cur := range t {
		switch {
		case cur.End+mergeSlack < r.Start:
			out = append(out, cur)
		case r.End+mergeSlack < cur.Start:
			if !inserted {
				out = append(out, r)
				inserted = true
			}
			out = append(out, cur)
		default:
			// Overlap or adjacency: grow r to cover both.
			if cur.Start < r.Start {
				r.Start = cur.Start
			}
			if cur.End > r.End {
				r.End = cur.End
			}
		}
	}
	if !inserted {
		out = append(out, r)
	}
	return out
}

// Remove returns a new TimeRanges with [start, end) cut out.
func (t TimeRanges) Remove(start, end float64) TimeRanges {
	if end <= start {
		return t
	}
	out := make(TimeRanges, 0, len(t))
	for _, cur := range t {
		if cur.End <= start || cur.Start >= end {
			out = append(out, cur)
			continue
		}
		if cur.Start < start {
			out = append(out, Range{Start: cur.Start, End: start})
		}
		if cur.End > end {
			out = append(out, Range{Start: end, End: cur.End})
		}
	}
	return out
}

// Start returns the earliest buffered time, or 0 if nothing is buffered.
func (t TimeRanges) Start() float64 {
	if len(t) == 0 {
		return 0
	}
	return t[0].Start
}

// End returns the latest buffered time, or 0 if nothing is buffered.
func (t TimeRanges) End() float64 {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].End
}

// Length returns the total buffered duration across all ranges.
func (t TimeRanges) Length() float64 {
	var total float64
	for _, r := range t {
		total += r.Length()
	}
	return total
}

// Contains reports whether time falls inside a buffered range.
func (t TimeRanges) Contains(time float64) bool {
	for _, r := range t {
		if time >= r.Start && time < r.End {
			return true
		}
	}
	return false
}

// BufferedAheadOf returns how much continuous media is buffered past the
// given time. 0 if time is not inside any range.
func (t TimeRanges) BufferedAheadOf(time float64) float64 {
	for _, r := range t {
		if time >= r.Start && time < r.End {
			return r.End - time
		}
	}
	return 0
}
