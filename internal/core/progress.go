package core

import "time"

// DefaultProgressInterval is the minimum gap between two progress callbacks.
const DefaultProgressInterval = 500 * time.Millisecond

// progressReporter throttles progress callbacks for one sync run.
//
// After each committed batch it emits a snapshot if at least interval has
// passed since the previous emission, or if the run has just processed its
// last row. The final snapshot is therefore always delivered, exactly once.
type progressReporter struct {
	fn       ProgressFunc
	interval time.Duration
	now      func() time.Time

	last     time.Time
	snapshot Progress
	final    bool
}

func newProgressReporter(fn ProgressFunc, total int, interval time.Duration, now func() time.Time) *progressReporter {
	return &progressReporter{
		fn:       fn,
		interval: interval,
		now:      now,
		last:     now(),
		snapshot: Progress{Total: total},
	}
}

// add records one committed batch and emits if the throttle allows it.
func (p *progressReporter) add(created, updated int) {
	p.snapshot.Created += created
	p.snapshot.Updated += updated
	p.snapshot.Processed += created + updated

	if p.snapshot.Processed >= p.snapshot.Total {
		p.finish()
		return
	}

	t := p.now()
	if t.Sub(p.last) < p.interval {
		return
	}
	p.last = t
	p.emit()
}

// finish emits the final snapshot unless it was already sent. It covers runs
// with no rows, which never commit a batch.
func (p *progressReporter) finish() {
	if p.final {
		return
	}
	p.final = true
	p.last = p.now()
	p.emit()
}

func (p *progressReporter) emit() {
	if p.fn != nil {
		p.fn(p.snapshot)
	}
}
