package sandbox

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/KaramelBytes/datachat/internal/dataset"
)

// limited caps concurrent executions of an inner sandbox.
type limited struct {
	inner Sandbox
	sem   *semaphore.Weighted
}

// Limit wraps sb so at most n executions run at once; n <= 0 returns sb.
// Waiting for a slot honours ctx.
func Limit(sb Sandbox, n int) Sandbox {
	if n <= 0 {
		return sb
	}
	return &limited{inner: sb, sem: semaphore.NewWeighted(int64(n))}
}

func (l *limited) Execute(ctx context.Context, code string, t *dataset.Table) Result {
	start := time.Now()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return failure(start, fmt.Sprintf("waiting for an execution slot: %v", err))
	}
	defer l.sem.Release(1)
	return l.inner.Execute(ctx, code, t)
}
