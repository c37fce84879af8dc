package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat/internal/ai"
	"github.com/KaramelBytes/datachat/internal/codegen"
	cfgpkg "github.com/KaramelBytes/datachat/internal/config"
	"github.com/KaramelBytes/datachat/internal/dataset"
	"github.com/KaramelBytes/datachat/internal/engine"
	"github.com/KaramelBytes/datachat/internal/journal"
	"github.com/KaramelBytes/datachat/internal/respond"
	"github.com/KaramelBytes/datachat/internal/sandbox"
	"github.com/KaramelBytes/datachat/internal/session"
)

// app bundles the wired collaborators of one process.
type app struct {
	engine  *engine.Engine
	store   *session.Store
	journal *journal.Journal
}

func (a *app) Close() error {
	if a.journal != nil {
		return a.journal.Close()
	}
	return nil
}

func buildApp(c *cfgpkg.Global, markup string, log *zap.Logger) (*app, error) {
	rt, ok := ai.GetRuntime(c.Provider, c.RuntimeConfig())
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Provider != ai.ProviderOllama && c.APIKey == "" {
		log.Warn("no API key configured; set DATACHAT_API_KEY or OPENROUTER_API_KEY")
	}

	sbOpts := c.SandboxOptions()
	sbOpts.Logger = log
	sb, err := sandbox.New(sbOpts)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}

	store := session.NewStore(session.Options{
		SystemPrompt: codegen.SystemPrompt,
		MaxSessions:  c.MaxSessions,
		IdleTTL:      c.SessionIdleTTL(),
		Logger:       log,
	})

	a := &app{store: store}
	var rec engine.Recorder
	if c.JournalPath != "" {
		j, err := journal.Open(c.JournalPath)
		if err != nil {
			return nil, err
		}
		a.journal = j
		rec = j
	}

	eng, err := engine.New(engine.Options{
		Store: store,
		Generator: codegen.New(rt, codegen.Options{
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
			Timeout:     c.OracleTimeout(),
			Logger:      log,
		}),
		Sandbox:   sb,
		Formatter: respond.New(markup),
		Journal:   rec,
		Summary:   dataset.SummaryOptions{SampleRows: c.SummaryRows, MaxTokens: c.SummaryMaxTokens},
		Logger:    log,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.engine = eng
	log.Info("engine ready",
		zap.String("provider", c.Provider),
		zap.String("model", c.Model),
		zap.String("sandbox_mode", sbOpts.Mode),
		zap.Bool("journal", a.journal != nil))
	return a, nil
}
