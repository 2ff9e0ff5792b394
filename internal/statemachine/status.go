// Package statemachine defines the container lifecycle states and the
// transitions the reconciler is allowed to make between them.
package statemachine

import "fmt"

// ContainerStatus is the lifecycle state of a container record.
type ContainerStatus string

const (
	Defined    ContainerStatus = "defined"
	Queued     ContainerStatus = "queued"
	Creating   ContainerStatus = "creating"
	Created    ContainerStatus = "created"
	Pending    ContainerStatus = "pending"
	Running    ContainerStatus = "running"
	Restarting ContainerStatus = "restarting"
	Paused     ContainerStatus = "paused"
	Exited     ContainerStatus = "exited"
	Stopped    ContainerStatus = "stopped"
	Completed  ContainerStatus = "completed"
	Failed     ContainerStatus = "failed"
	Invalid    ContainerStatus = "invalid"
)

// active holds the states in which the reconciler still owns the record:
// it either needs to be placed or needs to be watched.
var active = map[ContainerStatus]bool{
	Defined:    true,
	Queued:     true,
	Creating:   true,
	Created:    true,
	Pending:    true,
	Running:    true,
	Restarting: true,
	Paused:     true,
}

// terminal holds the states the reconciler never revisits once reached.
var terminal = map[ContainerStatus]bool{
	Exited:    true,
	Stopped:   true,
	Completed: true,
	Failed:    true,
	Invalid:   true,
}

// IsActive reports whether the reconciler still has work to do for s.
func (s ContainerStatus) IsActive() bool { return active[s] }

// IsTerminal reports whether s is a sink state.
func (s ContainerStatus) IsTerminal() bool { return terminal[s] }

// NeedsStart reports whether a record in this state still needs to be
// declared against its platform adapter.
func (s ContainerStatus) NeedsStart() bool {
	switch s {
	case Defined, Paused, Pending, Queued:
		return true
	default:
		return false
	}
}

// NeedsWatch reports whether a record in this state needs its adapter
// polled for a status update.
func (s ContainerStatus) NeedsWatch() bool {
	switch s {
	case Running, Creating, Created, Restarting:
		return true
	default:
		return false
	}
}

func (s ContainerStatus) String() string { return string(s) }

// Valid reports whether s is one of the thirteen known states.
func (s ContainerStatus) Valid() bool {
	return active[s] || terminal[s]
}

// Parse converts a raw string into a ContainerStatus, returning Invalid and
// an error if it is not one of the known states.
func Parse(raw string) (ContainerStatus, error) {
	s := ContainerStatus(raw)
	if !s.Valid() {
		return Invalid, fmt.Errorf("unknown container status %q", raw)
	}
	return s, nil
}
