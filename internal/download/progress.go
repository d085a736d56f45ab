package download

import "sync"

// Progress milestones for a single track download. Metadata retrieval,
// source matching, the media transfer and tag embedding each own a fixed
// span of the 0-100 scale.
const (
	milestoneMetadata = 10
	milestoneMatched  = 20
	milestoneFetched  = 80
)

// Container items reserve the outer spans for their own bookkeeping and
// divide the middle evenly among their tracks.
const (
	containerStart = 5
	containerEnd   = 95
)

// ProgressReporter maps download milestones onto a queue item's progress
// value. Progress never moves backwards, regardless of how callers
// interleave milestone and transfer updates.
type ProgressReporter struct {
	mu     sync.Mutex
	last   int
	update func(progress int)
}

// NewProgressReporter creates a reporter that pushes progress values
// through update. A nil update is allowed and discards all values.
func NewProgressReporter(update func(progress int)) *ProgressReporter {
	if update == nil {
		update = func(int) {}
	}
	return &ProgressReporter{update: update}
}

// set advances progress to value if it is an improvement
func (r *ProgressReporter) set(value int) {
	if value > 100 {
		value = 100
	}
	r.mu.Lock()
	if value <= r.last {
		r.mu.Unlock()
		return
	}
	r.last = value
	r.mu.Unlock()
	r.update(value)
}

// Current returns the last reported progress value
func (r *ProgressReporter) Current() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Begin marks a container item as started
func (r *ProgressReporter) Begin() {
	r.set(containerStart)
}

// Done marks the item as finished
func (r *ProgressReporter) Done() {
	r.set(100)
}

// FullRange returns a track span covering the whole progress scale,
// used when the queue item is a single track.
func (r *ProgressReporter) FullRange() *TrackProgress {
	return &TrackProgress{reporter: r, lo: 0, hi: 100}
}

// ContainerSlice returns the track span for track index of total within
// a container item. Each track gets an equal share of the container's
// middle span.
func (r *ProgressReporter) ContainerSlice(index, total int) *TrackProgress {
	if total <= 0 {
		return r.FullRange()
	}
	width := containerEnd - containerStart
	return &TrackProgress{
		reporter: r,
		lo:       containerStart + width*index/total,
		hi:       containerStart + width*(index+1)/total,
	}
}

// TrackProgress reports one track's milestones scaled into its span of
// the parent item's progress.
type TrackProgress struct {
	reporter *ProgressReporter
	lo, hi   int
}

// scale maps a 0-100 track-local value into the span
func (tp *TrackProgress) scale(value int) int {
	return tp.lo + (tp.hi-tp.lo)*value/100
}

// MetadataFetched marks catalog metadata retrieval as complete
func (tp *TrackProgress) MetadataFetched() {
	tp.reporter.set(tp.scale(milestoneMetadata))
}

// SourceMatched marks source selection as complete
func (tp *TrackProgress) SourceMatched() {
	tp.reporter.set(tp.scale(milestoneMatched))
}

// Transfer reports media transfer progress. Until the total size is
// known the value holds at the matched milestone.
func (tp *TrackProgress) Transfer(bytesDone, bytesTotal int64) {
	if bytesTotal <= 0 {
		tp.reporter.set(tp.scale(milestoneMatched))
		return
	}
	span := int64(milestoneFetched - milestoneMatched)
	value := milestoneMatched + int(span*bytesDone/bytesTotal)
	if value > milestoneFetched {
		value = milestoneFetched
	}
	tp.reporter.set(tp.scale(value))
}

// TransferDone marks the media transfer as complete
func (tp *TrackProgress) TransferDone() {
	tp.reporter.set(tp.scale(milestoneFetched))
}

// Done marks the track as fully processed, tags included
func (tp *TrackProgress) Done() {
	tp.reporter.set(tp.scale(100))
}
