// Package sched implements the Rate-Monotonic Scheduler: a fixed-size
// table of periodic task descriptors, the per-tick readiness and dispatch
// routine, and the Liu & Layland schedulability test.
//
// The scheduler is single-threaded and cooperative: Tick selects at most
// one ready task per call and the caller runs it to completion before the
// next Tick may occur. Priority only orders selection within a tick; it
// never preempts a task mid-execution.
package sched

import (
	"errors"
	"unsafe"

	"tinykernel/pkg/task"
)

// DefaultMaxTasks is the compile-time table size spec.md requires as the
// default. New accepts a different size, but a deployment that wants the
// documented footprint should pass DefaultMaxTasks.
const DefaultMaxTasks = 16

// ErrTableFull is the typed form of a failed Register; Register itself
// signals the same condition by returning ok=false so its success path
// never needs error handling.
var ErrTableFull = errors.New("sched: task table is full")

// Scheduler holds a fixed-capacity table of task descriptors plus the
// tick-driven dispatch state.
type Scheduler struct {
	tasks           []task.Descriptor
	taskCount       int
	tickUs          uint64
	currentTask     int
	contextSwitches uint64
}

// New constructs a Scheduler with room for exactly maxTasks descriptors,
// allocated once at construction; no further allocation occurs.
func New(maxTasks int) *Scheduler {
	if maxTasks <= 0 {
		maxTasks = DefaultMaxTasks
	}

	return &Scheduler{
		tasks:       make([]task.Descriptor, maxTasks),
		currentTask: -1,
	}
}

// NewDefault constructs a Scheduler with DefaultMaxTasks slots.
func NewDefault() *Scheduler {
	return New(DefaultMaxTasks)
}

// Register appends d into the first unused slot and marks it eligible
// starting at the current tick. It returns the assigned index and true,
// or (0, false) if the table is full.
func (s *Scheduler) Register(d task.Descriptor) (int, bool) {
	if s.taskCount >= len(s.tasks) {
		return 0, false
	}

	idx := s.taskCount
	d.State = task.Ready
	d.NextActivation = s.tickUs
	s.tasks[idx] = d
	s.taskCount++

	return idx, true
}

// RegisterErr is Register with a typed error instead of a bare bool,
// for callers that want to distinguish the failure reason without
// changing Register's success path.
func (s *Scheduler) RegisterErr(d task.Descriptor) (int, error) {
	idx, ok := s.Register(d)
	if !ok {
		return 0, ErrTableFull
	}

	return idx, nil
}

// Tick advances the system clock by deltaUs, promotes due Sleeping tasks
// to Ready, selects the highest-priority Ready task, performs deadline
// accounting, and advances the dispatched task to Sleeping for its next
// period. It returns the dispatched index and true, or (0, false) if no
// task was ready.
//
// Tick only performs the dispatch accounting; the caller is expected to
// follow up with ExecuteTask so that accounting and task-body execution
// can be tested independently.
func (s *Scheduler) Tick(deltaUs uint64) (int, bool) {
	s.tickUs += deltaUs

	for i := range s.tasks[:s.taskCount] {
		t := &s.tasks[i]
		if t.State == task.Sleeping && s.tickUs >= t.NextActivation {
			t.State = task.Ready
		}
	}

	selected := s.selectReady()
	if selected < 0 {
		s.currentTask = -1

		return 0, false
	}

	if selected != s.currentTask {
		s.contextSwitches++
		s.currentTask = selected
	}

	t := &s.tasks[selected]

	// Deadline check happens before next_activation is advanced: the
	// activation became due at next_activation, so its deadline is one
	// period later. This only flags overruns of a full period or more;
	// see JitterMisses for a stricter, finer-grained signal.
	if s.tickUs > t.NextActivation+uint64(t.PeriodUs) {
		t.DeadlineMisses++
	}

	if s.tickUs > t.NextActivation {
		t.JitterMisses++
	}

	t.State = task.Running
	t.ExecCount++
	t.NextActivation += uint64(t.PeriodUs)
	t.State = task.Sleeping

	return selected, true
}

// selectReady returns the index of the Ready descriptor with the
// numerically smallest priority, the lowest index winning ties. Returns
// -1 if no descriptor is Ready.
func (s *Scheduler) selectReady() int {
	best := -1

	for i := range s.tasks[:s.taskCount] {
		if s.tasks[i].State != task.Ready {
			continue
		}

		if best < 0 || s.tasks[i].Priority < s.tasks[best].Priority {
			best = i
		}
	}

	return best
}

// ExecuteTask invokes the task's function with scratch if the index is
// valid and the descriptor has a function assigned; it is a no-op
// otherwise. By the time the body runs, the descriptor's state has
// already moved on to Sleeping (see Tick) — this call never observes
// Running itself, only its effects.
func (s *Scheduler) ExecuteTask(idx int, scratch []byte) {
	if idx < 0 || idx >= s.taskCount {
		return
	}

	fn := s.tasks[idx].Func
	if fn == nil {
		return
	}

	fn(scratch)
}

// IsSchedulable runs the Liu & Layland sufficient schedulability test over
// the active task set. A false result is advisory, not an error: the
// scheduler keeps running and keeps recording misses regardless.
func (s *Scheduler) IsSchedulable() bool {
	n := s.ActiveTaskCount()
	if n == 0 {
		return true
	}

	return s.TotalUtilization() <= bound(n)
}

// TotalUtilization sums Utilization() over every active descriptor.
func (s *Scheduler) TotalUtilization() float64 {
	var total float64

	for i := range s.tasks[:s.taskCount] {
		if s.tasks[i].State == task.Inactive {
			continue
		}

		total += s.tasks[i].Utilization()
	}

	return total
}

// ActiveTaskCount returns the number of descriptors not in the Inactive
// state.
func (s *Scheduler) ActiveTaskCount() int {
	count := 0

	for i := range s.tasks[:s.taskCount] {
		if s.tasks[i].State != task.Inactive {
			count++
		}
	}

	return count
}

// GetTask returns a copy of the descriptor at idx.
func (s *Scheduler) GetTask(idx int) (task.Descriptor, bool) {
	if idx < 0 || idx >= s.taskCount {
		return task.Descriptor{}, false //nolint:exhaustruct
	}

	return s.tasks[idx], true
}

// NowUs returns the scheduler's current tick count.
func (s *Scheduler) NowUs() uint64 {
	return s.tickUs
}

// ContextSwitches returns the running count of dispatches whose selected
// index differed from the previous one.
func (s *Scheduler) ContextSwitches() uint64 {
	return s.contextSwitches
}

// DeadlineMisses sums DeadlineMisses across the registered task table.
func (s *Scheduler) DeadlineMisses() uint64 {
	var total uint64

	for i := range s.tasks[:s.taskCount] {
		total += uint64(s.tasks[i].DeadlineMisses)
	}

	return total
}

// JitterMisses sums JitterMisses across the registered task table.
func (s *Scheduler) JitterMisses() uint64 {
	var total uint64

	for i := range s.tasks[:s.taskCount] {
		total += uint64(s.tasks[i].JitterMisses)
	}

	return total
}

// TaskCount returns the number of registered descriptors, including
// suspended ones.
func (s *Scheduler) TaskCount() int {
	return s.taskCount
}

// Suspend inhibits the descriptor at idx from being selected until
// Resume is called. It is a no-op for an out-of-range index.
//
// Because a task's State is restored to Sleeping before its body runs
// (see Tick), suspending "the currently dispatched task" as observed by
// any external caller always acts on a Sleeping descriptor — Running is
// a transient flag internal to a single Tick call, never externally
// observable.
func (s *Scheduler) Suspend(idx int) bool {
	if idx < 0 || idx >= s.taskCount {
		return false
	}

	s.tasks[idx].State = task.Suspended

	return true
}

// Resume releases a Suspended descriptor back to Ready and makes it
// eligible immediately by resetting NextActivation to the current tick.
func (s *Scheduler) Resume(idx int) bool {
	if idx < 0 || idx >= s.taskCount {
		return false
	}

	s.tasks[idx].State = task.Ready
	s.tasks[idx].NextActivation = s.tickUs

	return true
}

// DeadlineOf returns the descriptor's activation window: deadline is
// NextActivation and start is one period before it, clamped to zero when
// NextActivation is below the period (so a task not yet dispatched since
// registration at tick 0 reports (0, 0)). After a dispatch this is the
// window of the activation just dispatched. This mirrors the external
// diagnostic Deadline record distinct from the scheduler's own inline
// accounting.
func (s *Scheduler) DeadlineOf(idx int) (start, deadline uint64, ok bool) {
	if idx < 0 || idx >= s.taskCount {
		return 0, 0, false
	}

	t := s.tasks[idx]

	period := uint64(t.PeriodUs)
	if t.NextActivation >= period {
		start = t.NextActivation - period
	}

	deadline = t.NextActivation

	return start, deadline, true
}

// MemoryFootprint returns the scheduler's static size in bytes: its own
// struct plus the backing array of the task table, which is the dominant
// cost and is otherwise invisible to unsafe.Sizeof on the slice header.
func (s *Scheduler) MemoryFootprint() int {
	return int(unsafe.Sizeof(*s)) + cap(s.tasks)*int(unsafe.Sizeof(task.Descriptor{})) //nolint:exhaustruct
}

// llBounds holds the Liu & Layland bound n*(2^(1/n)-1) for n in 1..8,
// index 0 unused. bound(n) for n>=9 uses ln(2) instead of recomputing the
// asymptote.
var llBounds = [9]float64{ //nolint:gochecknoglobals
	0, 1.000, 0.828, 0.780, 0.757, 0.743, 0.735, 0.729, 0.724,
}

const ln2 = 0.6931471805599453

func bound(n int) float64 {
	if n <= 0 {
		return 1
	}

	if n <= 8 {
		return llBounds[n]
	}

	return ln2
}
