package media

// Event is a progress notification emitted while a job runs. The concrete
// types are Progress and Phase.
type Event interface {
	isEvent()
}

// Progress reports a display percentage in [0, 100].
type Progress struct {
	Percent float64
	Message string
}

// Phase marks a milestone such as the start of a merge.
type Phase struct {
	Name    string
	Message string
}

func (Progress) isEvent() {}
func (Phase) isEvent()    {}

// Phase names emitted by the parsers and runners.
const (
	PhasePreparing   = "preparing"
	PhaseDownloading = "downloading"
	PhaseMerging     = "merging"
	PhaseFinalizing  = "finalizing"
)
