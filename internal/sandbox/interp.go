package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat/internal/dataset"
)

// Interp runs code in-process with the yaegi Go interpreter. Generated code
// runs with the privileges of the host process.
type Interp struct {
	opts Options
	ws   Workspace
	log  *zap.Logger
}

// NewInterp returns an in-process sandbox.
func NewInterp(opts Options) (*Interp, error) {
	opts.setDefaults()
	ws, err := NewWorkspace(opts.WorkDir)
	if err != nil {
		return nil, err
	}
	return &Interp{opts: opts, ws: ws, log: opts.Logger.Named("sandbox.interp")}, nil
}

// Execute runs code with df bound to a copy of t. Mutations made through df
// are written back to t only when the run succeeds; a run abandoned on
// timeout keeps working on its own copy.
func (s *Interp) Execute(ctx context.Context, code string, t *dataset.Table) Result {
	start := time.Now()
	dir, cleanup, err := s.ws.Prepare(userFrom(ctx))
	if err != nil {
		r := failure(start, err.Error())
		logFault(s.log, code, r)
		return r
	}
	defer cleanup()

	work := t.Clone()
	r := RunInDir(ctx, code, work, dir, s.opts.Timeout, s.opts.MaxOutputBytes)
	if r.Outcome == Success {
		img, err := readArtifact(dir)
		if err != nil {
			r = failure(start, fmt.Sprintf("read plot: %v", err))
		} else {
			r.Image = img
			t.Assign(work)
		}
	}
	r.Duration = time.Since(start)
	if r.Outcome == Failure {
		logFault(s.log, code, r)
	}
	return r
}

// RunInDir interprets code with plots saved under dir. It never reads the
// artifact back; callers decide what to do with it. On Failure any plot
// written to dir is removed.
func RunInDir(ctx context.Context, code string, t *dataset.Table, dir string, timeout time.Duration, maxOutput int) (res Result) {
	start := time.Now()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputBytes
	}
	defer func() {
		if p := recover(); p != nil {
			res = failure(start, fmt.Sprintf("panic: %v", p))
		}
		if res.Outcome == Failure {
			discardArtifact(dir)
		}
	}()

	src, err := wrapSource(code)
	if err != nil {
		return failure(start, err.Error())
	}
	if err := checkSource(src); err != nil {
		return failure(start, err.Error())
	}

	out := &limitedBuffer{max: maxOutput}
	i := interp.New(interp.Options{Stdout: out, Stderr: out})
	if err := i.Use(allowedSymbols()); err != nil {
		return failure(start, fmt.Sprintf("load symbols: %v", err))
	}
	df := t
	plt := newPlot(dir)
	if err := i.Use(interp.Exports{
		"datachat/env/env": {
			"DF":            reflect.ValueOf(&df).Elem(),
			"Plt":           reflect.ValueOf(&plt).Elem(),
			"Table":         reflect.ValueOf((*dataset.Table)(nil)),
			"Stats":         reflect.ValueOf((*dataset.Stats)(nil)),
			"CategoryCount": reflect.ValueOf((*dataset.CategoryCount)(nil)),
		},
	}); err != nil {
		return failure(start, fmt.Sprintf("bind env: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := i.EvalWithContext(ctx, src); err != nil {
		return failure(start, faultMessage(ctx, err, timeout))
	}
	if _, err := i.EvalWithContext(ctx, "main.Run()"); err != nil {
		return failure(start, faultMessage(ctx, err, timeout))
	}
	text := out.String()
	if out.truncated {
		text += "\n... (output truncated)"
	}
	return Result{Text: text, Outcome: Success, Duration: time.Since(start)}
}

func faultMessage(ctx context.Context, err error, timeout time.Duration) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("execution timed out after %s", timeout)
	}
	var p interp.Panic
	if errors.As(err, &p) {
		return fmt.Sprintf("panic: %v", p.Value)
	}
	// yaegi positions refer to the wrapped file; drop the synthetic name
	return strings.TrimPrefix(err.Error(), "_.go:")
}

// allowedSymbols filters the yaegi stdlib table down to allowedImports.
func allowedSymbols() interp.Exports {
	out := interp.Exports{}
	for key, syms := range stdlib.Symbols {
		path := pkgPathOf(key)
		if !allowedImports[path] {
			continue
		}
		if hidden := hiddenSymbols[path]; len(hidden) > 0 {
			kept := make(map[string]reflect.Value, len(syms))
			for name, v := range syms {
				if !hidden[name] {
					kept[name] = v
				}
			}
			syms = kept
		}
		out[key] = syms
	}
	return out
}

// hiddenSymbols are allowed-package symbols that run callbacks on another
// goroutine.
var hiddenSymbols = map[string]map[string]bool{
	"time": {"AfterFunc": true},
}

// pkgPathOf turns a yaegi export key such as "math/rand/rand" into its
// import path.
func pkgPathOf(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return key
}

// limitedBuffer keeps the first max bytes written and drops the rest.
type limitedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string { return b.buf.String() }
