// Package task defines the static periodic task descriptor the scheduler
// dispatches: priority, lifecycle state, and the bookkeeping fields a
// rate-monotonic scheduler needs to track activation and overrun.
package task

import "fmt"

// Priority is a total order where a lower value outranks a higher one.
// It is a plain numeric scalar, not an enum class: comparing two
// priorities with < or > is the whole contract.
type Priority uint8

// Named priority rungs. Idle is pinned to the bottom of the 0..255 range.
const (
	Critical Priority = 0
	High     Priority = 1
	Normal   Priority = 2
	Low      Priority = 3
	Idle     Priority = 255
)

// String renders well-known priority rungs by name and anything else
// numerically.
func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	case Idle:
		return "idle"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

// State is the closed set of lifecycle states a descriptor can occupy.
type State uint8

const (
	// Inactive marks an empty table slot, whose Func is nil. Registration
	// does not check Func, so a registered descriptor may also have a nil
	// Func.
	Inactive State = iota
	Ready
	Running
	Sleeping
	Suspended
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// NameLen is the fixed width of a descriptor's diagnostic name field.
const NameLen = 8

// Func is a task body: a capture-free function over the kernel's shared
// scratch buffer. No closures, no hidden state — the scratch slice is the
// only channel through which a dispatch can observe or mutate anything.
type Func func(scratch []byte)

// Descriptor is the fixed-size static record the scheduler's task table
// stores by value. Name is for diagnostics only; it is never compared or
// used as a lookup key.
type Descriptor struct {
	NextActivation uint64
	Func           Func
	Name           [NameLen]byte
	PeriodUs       uint32
	WCETUs         uint32
	ExecCount      uint32
	DeadlineMisses uint32
	JitterMisses   uint32
	Priority       Priority
	State          State
}

// SetName truncates name to NameLen bytes and zero-pads the remainder.
func (d *Descriptor) SetName(name string) {
	var buf [NameLen]byte
	copy(buf[:], name)
	d.Name = buf
}

// NameString returns the descriptor's name with trailing zero padding
// trimmed.
func (d *Descriptor) NameString() string {
	end := len(d.Name)
	for end > 0 && d.Name[end-1] == 0 {
		end--
	}

	return string(d.Name[:end])
}

// FrequencyHz returns the task's activation frequency, zero when PeriodUs
// is the reserved "inert" value of zero.
func (d *Descriptor) FrequencyHz() float64 {
	if d.PeriodUs == 0 {
		return 0
	}

	return 1_000_000 / float64(d.PeriodUs)
}

// Utilization returns WCETUs/PeriodUs, zero when PeriodUs is zero.
func (d *Descriptor) Utilization() float64 {
	if d.PeriodUs == 0 {
		return 0
	}

	return float64(d.WCETUs) / float64(d.PeriodUs)
}
