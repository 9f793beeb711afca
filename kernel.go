// Package tinykernel is a minimal, statically-allocated real-time kernel
// for deterministic periodic task execution: cooperative fixed-priority
// scheduling under Rate-Monotonic assignment (each tick dispatches at most
// one task, which runs to completion), plus a lock-free SPSC ring for
// task/interrupt communication. See pkg/sched, pkg/clock, pkg/ring,
// and pkg/task for the individual components; Kernel wires them together
// behind a single façade a host program links against.
package tinykernel

import (
	"encoding/binary"
	"unsafe"

	"tinykernel/pkg/clock"
	"tinykernel/pkg/sched"
	"tinykernel/pkg/task"
)

// ScratchSize is the fixed size of the scratch buffer loaned to task
// bodies during dispatch.
const ScratchSize = 1024

// Kernel owns the scheduler, the time source, and the scratch buffer
// loaned to whichever task a tick dispatches. It is meant to be placed as
// process-wide state with a single, deterministic init and no teardown;
// callers must serialize their own access to a Kernel from one thread,
// since only the SPSC ring boundary is safe under concurrency.
type Kernel struct {
	scheduler  sched.Scheduler
	clock      clock.Source
	scratch    [ScratchSize]byte
	workloadUs [sched.DefaultMaxTasks]uint32
	running    bool
	totalTicks uint64
}

// New constructs a hardware-backed Kernel whose clock runs at clockHz.
func New(clockHz uint32) *Kernel {
	return &Kernel{
		scheduler: *sched.NewDefault(),
		clock:     *clock.New(clockHz),
	}
}

// Testing constructs a Kernel backed by a software (1 tick = 1us) clock,
// for deterministic tests and simulation.
func Testing() *Kernel {
	return &Kernel{
		scheduler: *sched.NewDefault(),
		clock:     *clock.Software(),
	}
}

// AddTask is a convenience wrapper over the scheduler's Register.
func (k *Kernel) AddTask(
	name string,
	fn task.Func,
	priority task.Priority,
	periodUs, wcetUs uint32,
) (int, bool) {
	var d task.Descriptor

	d.SetName(name)
	d.Func = fn
	d.Priority = priority
	d.PeriodUs = periodUs
	d.WCETUs = wcetUs

	return k.scheduler.Register(d)
}

// SetWorkloadUs configures the microsecond duration Tick encodes into the
// first four scratch bytes before dispatching idx, following the
// workload-encoding convention pkg/workload.Run reads (see
// pkg/workload.HeaderLen). It has no effect on a task whose Func ignores
// that convention, and is a no-op for an out-of-range idx.
func (k *Kernel) SetWorkloadUs(idx int, us uint32) {
	if idx < 0 || idx >= len(k.workloadUs) {
		return
	}

	k.workloadUs[idx] = us
}

// Tick advances the time source by deltaUs, dispatches at most one task
// through the scheduler, and — if a task was selected — executes it with
// the shared scratch buffer. It returns the same index the scheduler
// selected.
func (k *Kernel) Tick(deltaUs uint64) (int, bool) {
	k.clock.Advance(deltaUs)
	k.totalTicks++

	idx, ok := k.scheduler.Tick(deltaUs)
	if !ok {
		return 0, false
	}

	if idx >= 0 && idx < len(k.workloadUs) {
		binary.LittleEndian.PutUint32(k.scratch[0:4], k.workloadUs[idx])
	}

	k.scheduler.ExecuteTask(idx, k.scratch[:])

	return idx, true
}

// Stats summarizes a run produced by RunFor.
type Stats struct {
	TotalUs         uint64
	TotalTicks      uint64
	TasksExecuted   uint64
	ContextSwitches uint64
	Utilization     float64
	Schedulable     bool
}

// RunFor drives the kernel in fixed increments of tickUs until the
// accumulated elapsed time reaches totalUs or Stop is called. It always
// advances in exactly tickUs increments, so elapsed is monotone and the
// loop may overshoot totalUs by at most tickUs-1.
func (k *Kernel) RunFor(totalUs, tickUs uint64) Stats {
	if tickUs == 0 {
		tickUs = 1
	}

	k.running = true

	var (
		elapsed       uint64
		tasksExecuted uint64
	)

	for elapsed < totalUs && k.running {
		if _, ok := k.Tick(tickUs); ok {
			tasksExecuted++
		}

		elapsed += tickUs
	}

	k.running = false

	return Stats{
		TotalUs:         elapsed,
		TotalTicks:      k.totalTicks,
		TasksExecuted:   tasksExecuted,
		ContextSwitches: k.scheduler.ContextSwitches(),
		Utilization:     k.scheduler.TotalUtilization(),
		Schedulable:     k.scheduler.IsSchedulable(),
	}
}

// Stop signals RunFor to return at the next tick boundary.
func (k *Kernel) Stop() {
	k.running = false
}

// IsRunning reports whether a RunFor loop is currently active.
func (k *Kernel) IsRunning() bool {
	return k.running
}

// IsSchedulable runs the scheduler's Liu & Layland test over the
// registered task set.
func (k *Kernel) IsSchedulable() bool {
	return k.scheduler.IsSchedulable()
}

// NowUs returns the kernel's current tick count in microseconds.
func (k *Kernel) NowUs() uint64 {
	return k.clock.NowUs()
}

// TotalTicks returns the number of Tick calls observed so far.
func (k *Kernel) TotalTicks() uint64 {
	return k.totalTicks
}

// ContextSwitches returns the scheduler's running context-switch count.
func (k *Kernel) ContextSwitches() uint64 {
	return k.scheduler.ContextSwitches()
}

// DeadlineMisses sums DeadlineMisses across the registered task table.
func (k *Kernel) DeadlineMisses() uint64 {
	return k.scheduler.DeadlineMisses()
}

// JitterMisses sums JitterMisses across the registered task table.
func (k *Kernel) JitterMisses() uint64 {
	return k.scheduler.JitterMisses()
}

// Suspend inhibits the task at idx from being dispatched.
func (k *Kernel) Suspend(idx int) bool {
	return k.scheduler.Suspend(idx)
}

// Resume releases a suspended task back to Ready, eligible immediately.
func (k *Kernel) Resume(idx int) bool {
	return k.scheduler.Resume(idx)
}

// GetTask returns a copy of the descriptor at idx.
func (k *Kernel) GetTask(idx int) (task.Descriptor, bool) {
	return k.scheduler.GetTask(idx)
}

// DeadlineOf returns the current activation window for the task at idx.
func (k *Kernel) DeadlineOf(idx int) (start, deadline uint64, ok bool) {
	return k.scheduler.DeadlineOf(idx)
}

// TotalUtilization sums Utilization() over every active task.
func (k *Kernel) TotalUtilization() float64 {
	return k.scheduler.TotalUtilization()
}

// ActiveTaskCount returns the number of registered tasks not Inactive.
func (k *Kernel) ActiveTaskCount() int {
	return k.scheduler.ActiveTaskCount()
}

// TaskCount returns the number of registered descriptors, including
// suspended ones.
func (k *Kernel) TaskCount() int {
	return k.scheduler.TaskCount()
}

// MemoryFootprint returns the constructed Kernel's static size in bytes:
// the task table, the time source, the scratch buffer, the per-task
// workload configuration, and the run-loop flags/counter. The target
// budget is under 2048 bytes.
func (k *Kernel) MemoryFootprint() int {
	return int(unsafe.Sizeof(k.scratch)) +
		k.scheduler.MemoryFootprint() +
		int(unsafe.Sizeof(k.clock)) +
		int(unsafe.Sizeof(k.workloadUs)) +
		int(unsafe.Sizeof(k.running)) +
		int(unsafe.Sizeof(k.totalTicks))
}
