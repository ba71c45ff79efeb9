package scan

// State identifies where the controller is in a run's lifecycle.
type State int

const (
	Idle State = iota
	Configuring
	Homing
	Scanning
	Returning
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Configuring:
		return "configuring"
	case Homing:
		return "homing"
	case Scanning:
		return "scanning"
	case Returning:
		return "returning"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}
