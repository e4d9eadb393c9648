package rt

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrUnsupported is returned by Apply on platforms without SCHED_RR.
var ErrUnsupported = errors.New("rt: realtime scheduling not supported on this platform")

// Role names a realtime thread of the engine.
type Role int

// Roles in descending order of latency sensitivity.
const (
	RoleChangeControl Role = iota
	RoleUpdateTimer
	RoleUpdate
	RoleAudioTransport
	RoleDeviceIO
	RoleMidiIn
	RoleMidiOut
	RoleMidiStream
	RoleSerialPort
	numRoles
)

var roleNames = [numRoles]string{
	"change-control",
	"update-timer",
	"update",
	"audio-transport",
	"device-io",
	"midi-in",
	"midi-out",
	"midi-stream",
	"serial-port",
}

func (r Role) String() string {
	if r < 0 || r >= numRoles {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

// ParseRole ...
func ParseRole(s string) (Role, error) {
	for i, name := range roleNames {
		if name == s {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("rt: unknown role %q", s)
}

// Roles returns every role, most latency sensitive first.
func Roles() []Role {
	roles := make([]Role, numRoles)
	for i := range roles {
		roles[i] = Role(i)
	}
	return roles
}

// MinPriority and MaxPriority bound SCHED_RR priorities on Linux.
const (
	MinPriority = 1
	MaxPriority = 99
)

// Table maps every role to a SCHED_RR priority.
type Table map[Role]int

// DefaultTable ...
func DefaultTable() Table {
	return Table{
		RoleChangeControl:  90,
		RoleUpdateTimer:    85,
		RoleUpdate:         80,
		RoleAudioTransport: 75,
		RoleDeviceIO:       70,
		RoleMidiIn:         65,
		RoleMidiOut:        60,
		RoleMidiStream:     55,
		RoleSerialPort:     50,
	}
}

// Priority returns the priority of r, falling back to the default table.
func (t Table) Priority(r Role) int {
	if p, ok := t[r]; ok {
		return p
	}
	return DefaultTable()[r]
}

// Validate checks ranges and that the role ranking is strictly preserved.
func (t Table) Validate() error {
	prev := MaxPriority + 1
	for _, r := range Roles() {
		p := t.Priority(r)
		if p < MinPriority || p > MaxPriority {
			return fmt.Errorf("rt: priority of %s must be in [%d,%d]: %d", r, MinPriority, MaxPriority, p)
		}
		if p >= prev {
			return fmt.Errorf("rt: priority of %s (%d) must be lower than the role above it (%d)", r, p, prev)
		}
		prev = p
	}
	return nil
}

// Scheduler assigns realtime priorities to the calling goroutine's thread.
// A nil *Scheduler leaves scheduling untouched.
type Scheduler struct {
	table  Table
	apply  func(priority int) error
	unlock func()
}

// NewScheduler ...
func NewScheduler(table Table) (*Scheduler, error) {
	if table == nil {
		table = DefaultTable()
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{table: table, apply: Apply, unlock: runtime.UnlockOSThread}, nil
}

func noRelease() {}

// Enter locks the calling goroutine to its OS thread and raises it to the
// priority of role. The goroutine must call release once it is done with
// the thread, typically right before it exits.
//
// release unlocks the thread only when raising failed. A raised thread
// stays locked, so the runtime terminates it when the goroutine exits
// instead of reusing it for other goroutines at realtime priority.
func (s *Scheduler) Enter(role Role) (release func(), err error) {
	if s == nil {
		return noRelease, nil
	}
	lockThread()
	if err := s.apply(s.table.Priority(role)); err != nil {
		return s.unlock, fmt.Errorf("rt: %s: %w", role, err)
	}
	return noRelease, nil
}

// Priority ...
func (s *Scheduler) Priority(role Role) int {
	if s == nil {
		return 0
	}
	return s.table.Priority(role)
}
