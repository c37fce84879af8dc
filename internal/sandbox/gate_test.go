package sandbox

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/KaramelBytes/datachat/internal/dataset"
)

type blockingSandbox struct {
	release chan struct{}
	running atomic.Int32
}

func (b *blockingSandbox) Execute(ctx context.Context, code string, t *dataset.Table) Result {
	b.running.Add(1)
	defer b.running.Add(-1)
	<-b.release
	return Result{Outcome: Success, Text: code}
}

func TestLimitCapsConcurrency(t *testing.T) {
	inner := &blockingSandbox{release: make(chan struct{})}
	sb := Limit(inner, 1)

	done := make(chan Result, 1)
	go func() { done <- sb.Execute(context.Background(), "first", nil) }()
	assert.Eventually(t, func() bool { return inner.running.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	r := sb.Execute(ctx, "second", nil)
	assert.Equal(t, Failure, r.Outcome)
	assert.Contains(t, r.Reason, "execution slot")

	close(inner.release)
	assert.Equal(t, "first", (<-done).Text)
}

func TestLimitZeroIsPassThrough(t *testing.T) {
	inner := &blockingSandbox{release: make(chan struct{})}
	assert.Same(t, Sandbox(inner), Limit(inner, 0))
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := New(Options{Mode: "vm"})
	assert.Error(t, err)
}
