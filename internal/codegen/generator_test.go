package codegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/datachat/internal/ai"
	"github.com/KaramelBytes/datachat/internal/session"
)

type fakeRuntime struct {
	reply string
	err   error
	delay time.Duration
	got   ai.GenerateRequest
}

func (f *fakeRuntime) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	f.got = req
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: f.reply}}}}, nil
}

func TestGenerateAppendsEphemeralTableInfo(t *testing.T) {
	rt := &fakeRuntime{reply: "```go\nfmt.Println(df.NumRows())\n```"}
	g := New(rt, Options{Model: "openai/gpt-4.1-mini", MaxTokens: 512, Temperature: 0.1})
	history := []session.Message{
		{Role: session.RoleSystem, Content: SystemPrompt},
		{Role: session.RoleUser, Content: "how many rows?"},
	}

	out, err := g.Generate(context.Background(), history, "shape: (3, 2)")
	require.NoError(t, err)
	assert.Equal(t, rt.reply, out)

	require.Len(t, rt.got.Messages, 3)
	assert.Equal(t, ai.Message{Role: "user", Content: "Table info:\nshape: (3, 2)"}, rt.got.Messages[2])
	assert.Equal(t, "openai/gpt-4.1-mini", rt.got.Model)
	assert.Equal(t, 512, rt.got.MaxTokens)
	assert.Len(t, history, 2, "caller history must not grow")
}

func TestGenerateEmptyReplyIsMalformed(t *testing.T) {
	g := New(&fakeRuntime{reply: "  \n"}, Options{Model: "m"})
	_, err := g.Generate(context.Background(), nil, "")
	var ge *GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, KindMalformed, ge.Kind)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.False(t, ge.Retryable())
}

func TestGenerateTimeoutIsTransient(t *testing.T) {
	g := New(&fakeRuntime{reply: "x", delay: time.Second}, Options{Model: "m", Timeout: 20 * time.Millisecond})
	_, err := g.Generate(context.Background(), nil, "")
	var ge *GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, KindTransient, ge.Kind)
	assert.True(t, ge.Retryable())
}

func TestClassify(t *testing.T) {
	api := &ai.APIError{StatusCode: 500, Message: "boom"}
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{&ai.ServerError{APIError: api}, KindTransient},
		{&ai.UnreachableError{Host: "h", Err: errors.New("refused")}, KindTransient},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), KindTransient},
		{&ai.RateLimitError{APIError: api}, KindRateLimited},
		{&ai.QuotaExceededError{APIError: api}, KindQuota},
		{&ai.AuthError{APIError: api}, KindAuth},
		{fmt.Errorf("decode response: %w", &json.SyntaxError{}), KindMalformed},
		{&ai.BadRequestError{APIError: &ai.APIError{StatusCode: 400}}, KindRejected},
		{fmt.Errorf("generate: %w", &ai.ModelNotFoundError{APIError: &ai.APIError{StatusCode: 404}}), KindRejected},
		{&ai.APIError{StatusCode: 418}, KindOther},
		{context.Canceled, KindOther},
		{errors.New("mystery"), KindOther},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classify(tc.err), "%T %v", tc.err, tc.err)
	}
}
