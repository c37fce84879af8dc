// Package sandbox executes generated analysis code against a table with
// output capture and request-scoped plot artifacts.
//
// The in-process Interp sandbox provides output capture and a small binding
// surface only; it is not a security boundary. Process and Docker run the
// same interpreter out of process for isolation.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat/internal/dataset"
)

// ArtifactName is the file generated code saves plots to.
const ArtifactName = "output.png"

// Defaults.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxOutputBytes = 64 << 10
	MaxImageBytes         = 10 << 20
)

// Sandbox modes accepted by New.
const (
	ModeInterp  = "interp"
	ModeProcess = "process"
	ModeDocker  = "docker"
)

// Outcome is the overall result of one execution.
type Outcome string

const (
	Success Outcome = "success"
	Failure Outcome = "failure"
)

// Result is what one execution produced. On Failure Text is empty and
// Image is nil.
type Result struct {
	Text     string        `json:"text"`
	Image    []byte        `json:"-"`
	Outcome  Outcome       `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Sandbox runs code with df bound to t and plt bound to a fresh plot.
// Execute never returns an error: every fault becomes a Failure result.
type Sandbox interface {
	Execute(ctx context.Context, code string, t *dataset.Table) Result
}

// Options configures every sandbox mode.
type Options struct {
	Mode string
	// WorkDir is the root of request-scoped artifact directories.
	WorkDir        string
	Timeout        time.Duration
	MaxOutputBytes int
	// MaxConcurrent caps executions across all users; 0 means unlimited.
	MaxConcurrent int
	// Binary is the datachat executable re-run by Process; empty means
	// the current executable.
	Binary string
	// Image, MemoryMB and NanoCPUs configure Docker.
	Image    string
	MemoryMB int64
	NanoCPUs int64
	Logger   *zap.Logger
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxOutputBytes <= 0 {
		o.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// New builds the sandbox selected by opts.Mode, wrapped in the global
// concurrency gate.
func New(opts Options) (Sandbox, error) {
	opts.setDefaults()
	var (
		sb  Sandbox
		err error
	)
	switch strings.ToLower(opts.Mode) {
	case "", ModeInterp:
		sb, err = NewInterp(opts)
	case ModeProcess:
		sb, err = NewProcess(opts)
	case ModeDocker:
		sb, err = NewDocker(opts)
	default:
		return nil, fmt.Errorf("unknown sandbox mode %q (want %s, %s or %s)", opts.Mode, ModeInterp, ModeProcess, ModeDocker)
	}
	if err != nil {
		return nil, err
	}
	return Limit(sb, opts.MaxConcurrent), nil
}

func failure(start time.Time, reason string) Result {
	return Result{Outcome: Failure, Reason: reason, Duration: time.Since(start)}
}

// logFault records a failed execution with the full code for operators.
func logFault(log *zap.Logger, code string, r Result) {
	log.Warn("execution failed",
		zap.String("reason", r.Reason),
		zap.Duration("duration", r.Duration),
		zap.String("code", code))
}

type userKey struct{}

// WithUser tags ctx with the user an execution runs for; it selects the
// artifact directory namespace.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

func userFrom(ctx context.Context) string {
	if v, ok := ctx.Value(userKey{}).(string); ok && v != "" {
		return v
	}
	return "anonymous"
}
