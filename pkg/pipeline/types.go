package pipeline

import "time"

// DerivedType constants name the renditions kept for every catalog image
const (
	DerivedTypeWeb   = "web"
	DerivedTypeThumb = "thumb"
)

// State is the terminal state of one descriptor's processing
type State string

const (
	// StateSkipped means every derivative was already present
	StateSkipped State = "skipped"

	// StateGenerated means at least one missing derivative was written
	StateGenerated State = "generated"

	// StateFailed means processing stopped with an error
	StateFailed State = "failed"
)

// Upload records one derivative written to the store
type Upload struct {
	Kind   string `json:"kind"`
	Key    string `json:"key"`
	Bytes  int    `json:"bytes"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Outcome reports what happened to one descriptor
type Outcome struct {
	Descriptor string   `json:"descriptor"`
	ID         string   `json:"id,omitempty"`
	Version    int      `json:"version,omitempty"`
	State      State    `json:"state"`
	Uploads    []Upload `json:"uploads,omitempty"`
	Error      string   `json:"error,omitempty"`
	Err        error    `json:"-"`
}

// Report summarizes a batch run
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Count returns how many outcomes ended in state
func (r *Report) Count(state State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}

// Uploaded returns the total number of derivatives written
func (r *Report) Uploaded() int {
	n := 0
	for _, o := range r.Outcomes {
		n += len(o.Uploads)
	}
	return n
}

// NothingToDo reports whether the run had no descriptors to consider
func (r *Report) NothingToDo() bool {
	return len(r.Outcomes) == 0
}
