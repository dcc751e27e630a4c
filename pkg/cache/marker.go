package cache

import "github.com/fluxmix/mixcore/pkg/audio"

// marker binds a run of consecutive frames to the input format that
// produced them. The tail marker's run grows as the producer deposits
// frames into it.
type marker struct {
	format audio.FormatDescriptor
	run    int
	next   *marker
}

// markerList is the ordered sequence of markers carried by a Cache. At
// most one marker may carry the sentinel format, and it can only be the
// head: deposit creates a sentinel-format marker only when the list is
// empty, and a later sentinel-format write grows the tail instead.
type markerList struct {
	head, tail *marker
}

// deposit records n newly-produced frames reported as format. It appends a
// new marker when the list is empty or format is a concrete format that
// differs from the tail's, otherwise it grows the tail's run.
func (l *markerList) deposit(format audio.FormatDescriptor, n int) {
	if n == 0 {
		return
	}
	if l.tail == nil || (!format.IsSentinel() && format != l.tail.format) {
		m := &marker{format: format}
		if l.tail != nil {
			l.tail.next = m
		} else {
			l.head = m
		}
		l.tail = m
	}
	l.tail.run += n
}

// retireHead drops the head marker once its run has been fully drained.
func (l *markerList) retireHead() {
	if l.head == nil {
		return
	}
	l.head = l.head.next
	if l.head == nil {
		l.tail = nil
	}
}

// headFormat returns the format of the oldest undrained marker, or the
// sentinel if the list is empty.
func (l *markerList) headFormat() audio.FormatDescriptor {
	if l.head == nil {
		return audio.FormatDescriptor{}
	}
	return l.head.format
}

// sum returns the total run-length carried by the list — invariant: this
// always equals the cache's current fill level.
func (l *markerList) sum() int {
	total := 0
	for m := l.head; m != nil; m = m.next {
		total += m.run
	}
	return total
}

// reset drops every marker, used by Flush.
func (l *markerList) reset() {
	l.head = nil
	l.tail = nil
}
