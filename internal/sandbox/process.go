package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat/internal/dataset"
)

// RunnerCommand is the hidden subcommand that executes a job directory.
const RunnerCommand = "sandbox-run"

// Process runs each execution in a child datachat process on a copy of the
// table. Mutations made by the code are discarded.
type Process struct {
	opts Options
	ws   Workspace
	bin  string
	log  *zap.Logger
}

// NewProcess returns a child-process sandbox.
func NewProcess(opts Options) (*Process, error) {
	opts.setDefaults()
	bin := opts.Binary
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate datachat binary: %w", err)
		}
		bin = exe
	}
	ws, err := NewWorkspace(opts.WorkDir)
	if err != nil {
		return nil, err
	}
	return &Process{opts: opts, ws: ws, bin: bin, log: opts.Logger.Named("sandbox.process")}, nil
}

func (s *Process) Execute(ctx context.Context, code string, t *dataset.Table) Result {
	start := time.Now()
	r := s.execute(ctx, code, t, start)
	r.Duration = time.Since(start)
	if r.Outcome == Failure {
		logFault(s.log, code, r)
	}
	return r
}

func (s *Process) execute(ctx context.Context, code string, t *dataset.Table, start time.Time) Result {
	dir, cleanup, err := s.ws.Prepare(userFrom(ctx))
	if err != nil {
		return failure(start, err.Error())
	}
	defer cleanup()
	if err := writeJob(dir, code, t, s.opts); err != nil {
		return failure(start, err.Error())
	}

	// the child enforces the timeout itself; the parent deadline is a backstop
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout+2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, s.bin, RunnerCommand, dir)
	cmd.Dir = dir
	cmd.Env = []string{"HOME=" + dir, "TMPDIR=" + dir}
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return failure(start, fmt.Sprintf("execution timed out after %s", s.opts.Timeout))
		}
		return failure(start, childFault(err, stderr.String()))
	}
	r, err := collectResult(dir)
	if err != nil {
		return failure(start, err.Error())
	}
	return r
}

// childFault summarizes a failed child using the last stderr line.
func childFault(err error, stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if last := strings.TrimSpace(lines[len(lines)-1]); last != "" {
		return fmt.Sprintf("%v: %s", err, last)
	}
	return err.Error()
}
