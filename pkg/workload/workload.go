// Package workload supplies capture-free task bodies for demo and test
// task sets. The kernel's task model forbids closures and hidden state
// (pkg/task.Func is plain, capture-free function value), so a
// configurable workload has to thread its configuration through the
// scratch buffer itself rather than through a captured variable.
//
// Run busy-spins for a duration encoded in the first four bytes of its
// scratch slice, burning a quantum without sleeping (sleeping here would
// stall the kernel's single cooperative dispatch thread for every other
// task).
package workload

import (
	"encoding/binary"
	"runtime"
	"time"
)

// HeaderLen is the number of scratch bytes Run reads/writes: a 4-byte
// little-endian duration in microseconds, followed by a 4-byte
// little-endian run counter.
const HeaderLen = 8

// EncodeDuration writes the microsecond duration Run should busy-wait for
// into scratch[0:4].
func EncodeDuration(scratch []byte, us uint32) {
	if len(scratch) < HeaderLen {
		return
	}

	binary.LittleEndian.PutUint32(scratch[0:4], us)
}

// DecodeRunCount reads the run counter Run increments at scratch[4:8].
func DecodeRunCount(scratch []byte) uint32 {
	if len(scratch) < HeaderLen {
		return 0
	}

	return binary.LittleEndian.Uint32(scratch[4:8])
}

// Run is a task.Func: it busy-waits for the duration encoded at
// scratch[0:4] microseconds and increments the counter at scratch[4:8].
// It is a no-op on a scratch slice shorter than HeaderLen.
func Run(scratch []byte) {
	if len(scratch) < HeaderLen {
		return
	}

	us := binary.LittleEndian.Uint32(scratch[0:4])
	busyWait(time.Duration(us) * time.Microsecond)

	count := binary.LittleEndian.Uint32(scratch[4:8])
	binary.LittleEndian.PutUint32(scratch[4:8], count+1)
}

func busyWait(d time.Duration) {
	if d <= 0 {
		return
	}

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		runtime.Gosched()
	}
}
