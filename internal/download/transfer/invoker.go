// Package transfer launches and supervises the external segmented-download
// tool (aria2c). It never speaks HTTP itself.
package transfer

import (
	"context"
	"fmt"
	"strconv"

	"hf_downloader/internal/download/types"
)

// Spec describes one file transfer.
type Spec struct {
	URL           string
	Dir           string
	Filename      string
	Connections   int
	Segments      int
	ParallelFiles int
	SpeedLimit    types.SpeedLimit
	Headers       map[string]string
}

// Invoker starts transfers. Implementations must fail with
// *types.ToolingMissingError before spawning anything when the tool is absent.
type Invoker interface {
	// Check reports whether the tool can be launched at all.
	Check() error
	// Invoke launches a transfer and returns a handle to supervise it.
	Invoke(ctx context.Context, spec Spec) (Handle, error)
}

// Handle is a running transfer. Only the supervising goroutine uses it.
type Handle interface {
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// ExitCode is valid after Done; -1 for a signal death.
	ExitCode() int
	// Diagnostics returns the retained tail of the process output.
	Diagnostics() string
	// Terminate asks the process to exit and escalates to a kill if it
	// lingers past the grace period.
	Terminate() error
	// Terminated reports whether Terminate signalled a live process.
	Terminated() bool
}

// BuildArgs renders spec as aria2c arguments: persistent resume, fixed
// connection/segment counts, explicit output location, optional rate cap.
func BuildArgs(spec Spec) []string {
	conns := spec.Connections
	if conns <= 0 {
		conns = types.DefaultConnections
	}
	segs := spec.Segments
	if segs <= 0 {
		segs = types.DefaultSegments
	}
	files := spec.ParallelFiles
	if files <= 0 {
		files = types.DefaultParallelFiles
	}

	args := []string{
		"-x", strconv.Itoa(conns),
		"-s", strconv.Itoa(segs),
		"-j", strconv.Itoa(files),
		"--continue=true",
		"--dir", spec.Dir,
		"--out", spec.Filename,
	}
	if !spec.SpeedLimit.IsUnlimited() {
		args = append(args, "--max-download-limit", spec.SpeedLimit.Aria2Value())
	}
	for _, k := range sortedKeys(spec.Headers) {
		args = append(args, fmt.Sprintf("--header=%s: %s", k, spec.Headers[k]))
	}
	return append(args, spec.URL)
}
