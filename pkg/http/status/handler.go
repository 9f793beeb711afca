// Package status renders the kernel's schedulability verdict and per-task
// state as JSON over HTTP.
package status

import (
	"encoding/json"
	"net/http"

	"tinykernel/pkg/task"
)

// Kernel exposes the read-only surface the handler needs. tinykernel.Kernel
// satisfies it without either package importing the other.
type Kernel interface {
	IsSchedulable() bool
	TotalUtilization() float64
	ActiveTaskCount() int
	TaskCount() int
	GetTask(idx int) (task.Descriptor, bool)
	DeadlineOf(idx int) (start, deadline uint64, ok bool)
}

// TaskSnapshot is the JSON projection of one task descriptor.
type TaskSnapshot struct {
	Name           string `json:"name"`
	Priority       string `json:"priority"`
	State          string `json:"state"`
	Index          int    `json:"index"`
	NextActivation uint64 `json:"nextActivation"`
	DeadlineStart  uint64 `json:"deadlineStart"`
	DeadlineEnd    uint64 `json:"deadlineEnd"`
	ExecCount      uint32 `json:"execCount"`
	DeadlineMisses uint32 `json:"deadlineMisses"`
	JitterMisses   uint32 `json:"jitterMisses"`
}

// Snapshot captures the kernel status returned by the handler.
type Snapshot struct {
	Tasks       []TaskSnapshot `json:"tasks"`
	Utilization float64        `json:"utilization"`
	ActiveTasks int            `json:"activeTasks"`
	Schedulable bool           `json:"schedulable"`
}

// Handler renders kernel health information as JSON.
type Handler struct {
	kernel Kernel
}

// NewHandler constructs a Handler that proxies kernel status.
func NewHandler(kernel Kernel) *Handler {
	return &Handler{kernel: kernel}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(writer http.ResponseWriter, _ *http.Request) {
	if h == nil || h.kernel == nil {
		http.Error(writer, "kernel unavailable", http.StatusServiceUnavailable)

		return
	}

	snapshot := Snapshot{
		Schedulable: h.kernel.IsSchedulable(),
		Utilization: h.kernel.TotalUtilization(),
		ActiveTasks: h.kernel.ActiveTaskCount(),
		Tasks:       h.taskSnapshots(),
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		http.Error(writer, "marshal status", http.StatusInternalServerError)

		return
	}

	writer.Header().Set("Content-Type", "application/json")
	_, _ = writer.Write(payload)
}

func (h *Handler) taskSnapshots() []TaskSnapshot {
	count := h.kernel.TaskCount()
	snapshots := make([]TaskSnapshot, 0, count)

	for idx := 0; idx < count; idx++ {
		d, ok := h.kernel.GetTask(idx)
		if !ok {
			continue
		}

		start, end, _ := h.kernel.DeadlineOf(idx)

		snapshots = append(snapshots, TaskSnapshot{
			Index:          idx,
			Name:           d.NameString(),
			Priority:       d.Priority.String(),
			State:          d.State.String(),
			NextActivation: d.NextActivation,
			DeadlineStart:  start,
			DeadlineEnd:    end,
			ExecCount:      d.ExecCount,
			DeadlineMisses: d.DeadlineMisses,
			JitterMisses:   d.JitterMisses,
		})
	}

	return snapshots
}
