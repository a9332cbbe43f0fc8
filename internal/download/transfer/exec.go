package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hf_downloader/internal/download/types"
	"hf_downloader/internal/utils"
)

// ExecInvoker runs aria2c as a child process.
type ExecInvoker struct {
	// Path pins the executable; empty means search (see Locate).
	Path string
	// SearchDirs are consulted after the running binary's directory.
	SearchDirs []string
	// Grace is how long a terminated process may take before being killed.
	Grace time.Duration
}

// NewExecInvoker builds an invoker from the engine transfer config.
func NewExecInvoker(cfg *types.TransferConfig, searchDirs ...string) *ExecInvoker {
	inv := &ExecInvoker{SearchDirs: searchDirs, Grace: cfg.GetTerminateGrace()}
	if cfg != nil {
		inv.Path = cfg.Aria2Path
	}
	return inv
}

func (e *ExecInvoker) Check() error {
	_, err := Locate(e.Path, e.SearchDirs...)
	return err
}

func (e *ExecInvoker) Invoke(ctx context.Context, spec Spec) (Handle, error) {
	bin, err := Locate(e.Path, e.SearchDirs...)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(spec.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", spec.Dir, err)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	args := BuildArgs(spec)
	cmd := exec.CommandContext(procCtx, bin, args...)
	tail := newTailBuffer(types.DiagnosticsLimit)
	cmd.Stdout = tail
	cmd.Stderr = tail
	cmd.Cancel = func() error { return terminate(cmd.Process) }
	grace := e.Grace
	if grace <= 0 {
		grace = types.DefaultTerminateGrace
	}
	cmd.WaitDelay = grace
	configureSysProcAttr(cmd)

	utils.Debug("transfer: %s %s", bin, redactArgs(args))
	if err := cmd.Start(); err != nil {
		cancel()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, &types.ToolingMissingError{Binary: bin, Searched: []string{bin}}
		}
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}

	h := &processHandle{
		cmd:      cmd,
		cancel:   cancel,
		done:     make(chan struct{}),
		tail:     tail,
		exitCode: -1,
	}
	go h.wait()
	return h, nil
}

type processHandle struct {
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	done       chan struct{}
	tail       *tailBuffer
	exitCode   int
	terminated atomic.Bool
}

func (h *processHandle) wait() {
	err := h.cmd.Wait()
	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	}
	utils.Debug("transfer: pid %d exited code=%d err=%v", h.cmd.Process.Pid, h.exitCode, err)
	h.cancel()
	close(h.done)
}

func (h *processHandle) Done() <-chan struct{} { return h.done }

func (h *processHandle) ExitCode() int {
	<-h.done
	return h.exitCode
}

func (h *processHandle) Diagnostics() string { return h.tail.String() }

func (h *processHandle) Terminate() error {
	select {
	case <-h.done:
		return nil
	default:
	}
	if h.terminated.Swap(true) {
		return nil
	}
	h.cancel()
	return nil
}

func (h *processHandle) Terminated() bool { return h.terminated.Load() }

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

// redactArgs hides header values (they may carry a bearer token).
func redactArgs(args []string) string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.HasPrefix(a, "--header=") {
			if idx := strings.Index(a, ":"); idx > 0 {
				a = a[:idx] + ": ***"
			}
		}
		out[i] = a
	}
	return strings.Join(out, " ")
}
