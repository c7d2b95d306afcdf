package connection

import "time"

// BusyState is the connection's exclusive state machine (spec Connection
// fields, I2/I3).
type BusyState struct {
	Kind      BusyKind
	Command   string
	StartedAt time.Time
	OwnerSID  string // set when Kind == ReplAttached
}

type BusyKind int

const (
	Idle BusyKind = iota
	RunningCommand
	ReplAttached
	DetachedRunning
)

func (k BusyKind) String() string {
	switch k {
	case RunningCommand:
		return "running_command"
	case ReplAttached:
		return "repl_attached"
	case DetachedRunning:
		return "detached_running"
	default:
		return "idle"
	}
}

// detachedAllow is the command set permitted while BusyState is
// DetachedRunning.
var detachedAllow = map[string]bool{
	"run_stop":           true,
	"reset":              true,
	"status":             true,
	"ping":               true,
	"shutdown":           true,
	"session_info":       true,
	"session_disconnect": true,
	"disconnect_port":    true,
	"free":               true,
}

// readOnly commands never mutate device state and are allowed to
// interleave with another session's REPL attachment check (still subject
// to the connection mutex for execution ordering, just not the I2 rule).
var readOnly = map[string]bool{
	"ls": true, "cat": true, "stat": true, "is_dir": true, "mem": true, "df": true,
	"ping": true, "status": true, "session_info": true,
}
