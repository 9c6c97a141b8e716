package importer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Run is the handle of one import. Progress snapshots are delivered on
// Progress() in file order; the channel is closed when the run ends.
type Run struct {
	ID        string
	Directory string

	progress  chan Progress
	cancelled atomic.Bool
	done      chan struct{}

	mu      sync.Mutex
	state   State
	err     error
	last    Progress
	summary Summary
}

func newRun(id, dir string, started time.Time) *Run {
	return &Run{
		ID:        id,
		Directory: dir,
		done:      make(chan struct{}),
		summary: Summary{
			RunID:     id,
			Directory: dir,
			StartedAt: started,
		},
	}
}

// Progress returns the snapshot stream.
func (r *Run) Progress() <-chan Progress { return r.progress }

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel requests the run to stop before it starts the next file. The file
// being processed, if any, still completes.
func (r *Run) Cancel() { r.cancelled.Store(true) }

func (r *Run) cancelRequested() bool { return r.cancelled.Load() }

// Wait blocks until the run ends and returns nil on completion, a
// KindCancelled error on cancellation, or the failure that stopped it.
func (r *Run) Wait() error {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// State returns the current lifecycle state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Latest returns the most recent snapshot emitted.
func (r *Run) Latest() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Summary describes the run so far.
func (r *Run) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.summary
	s.State = r.state.String()
	s.Total = r.last.Total
	s.Completed = r.last.Completed
	if r.err != nil {
		s.Error = r.err.Error()
	}
	return s
}

func (r *Run) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

func (r *Run) emit(p Progress) {
	r.mu.Lock()
	r.last = p
	r.mu.Unlock()
	r.progress <- p
}

func (r *Run) noteImages(front, back bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !front {
		r.summary.MissingFront++
	}
	if !back {
		r.summary.MissingBack++
	}
}

func (r *Run) finish(state State, err error, at time.Time) {
	r.mu.Lock()
	r.state = state
	r.err = err
	r.summary.FinishedAt = at
	r.mu.Unlock()

	close(r.progress)
	close(r.done)
}
