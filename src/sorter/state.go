package sorter

// State is the step a sort is in
type State int

const (
	Idle State = iota
	Partitioning
	Loading
	Sorting
	Merging
	Done
	Cancelled
	Failed
)

var stateNames = [...]string{
	Idle:         "idle",
	Partitioning: "partitioning",
	Loading:      "loading",
	Sorting:      "sorting",
	Merging:      "merging",
	Done:         "done",
	Cancelled:    "cancelled",
	Failed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// running reports whether a sort is in progress
func (s State) running() bool {
	return s >= Partitioning && s <= Merging
}
