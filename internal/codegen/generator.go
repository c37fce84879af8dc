// Package codegen turns a conversation and a dataset summary into analysis
// code by asking the configured model.
package codegen

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat/internal/ai"
	"github.com/KaramelBytes/datachat/internal/session"
)

// Options configures a Generator.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// Timeout bounds one Generate call; 0 means no extra deadline.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Generator asks an ai.Runtime for code. It never retries; retry policy
// belongs to the caller.
type Generator struct {
	rt   ai.Runtime
	opts Options
	log  *zap.Logger
}

// New returns a Generator backed by rt.
func New(rt ai.Runtime, opts Options) *Generator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Generator{rt: rt, opts: opts, log: opts.Logger.Named("codegen")}
}

// Generate sends history followed by one ephemeral user message carrying
// summary and returns the model's raw text. Failures are *GenerationError.
func (g *Generator) Generate(ctx context.Context, history []session.Message, summary string) (string, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	msgs := make([]ai.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, ai.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, ai.Message{Role: session.RoleUser, Content: TableInfoPrefix + summary})

	start := time.Now()
	resp, err := g.rt.Generate(ctx, ai.GenerateRequest{
		Model:       g.opts.Model,
		Messages:    msgs,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	})
	if err != nil {
		kind := classify(err)
		g.log.Warn("generation failed",
			zap.String("kind", string(kind)),
			zap.Int("status", ai.StatusCode(err)),
			zap.Error(err))
		return "", &GenerationError{Kind: kind, Err: err}
	}
	text := resp.Content()
	if strings.TrimSpace(text) == "" {
		return "", &GenerationError{Kind: KindMalformed, Err: ErrEmptyResponse}
	}
	fields := []zap.Field{
		zap.String("model", g.opts.Model),
		zap.String("request_id", resp.RequestID),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)),
	}
	if cost, ok := ai.EstimateCostUSD(g.opts.Model, resp.Usage); ok {
		fields = append(fields, zap.Float64("est_cost_usd", cost))
	}
	g.log.Info("code generated", fields...)
	return text, nil
}
