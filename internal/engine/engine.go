// Package engine runs one chat turn at a time: uploads replace a user's
// session, questions go through generation, execution and formatting.
package engine

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat/internal/codegen"
	"github.com/KaramelBytes/datachat/internal/dataset"
	"github.com/KaramelBytes/datachat/internal/ingest"
	"github.com/KaramelBytes/datachat/internal/journal"
	"github.com/KaramelBytes/datachat/internal/respond"
	"github.com/KaramelBytes/datachat/internal/sandbox"
	"github.com/KaramelBytes/datachat/internal/session"
)

// Replies sent for situations that are not execution results.
const (
	MsgStart          = "Send me a CSV or XLSX file to begin."
	MsgLoaded         = "File loaded. Ask me about your data!"
	MsgNeedFile       = "Please send a CSV or XLSX file first."
	MsgUnsupported    = "Please upload a CSV or XLSX file."
	MsgUnreadable     = "Could not read file"
	MsgGenerateFailed = "Could not generate code: "
	MsgInternal       = "Something went wrong while handling your message."
)

// EventKind distinguishes inbound events.
type EventKind string

const (
	EventStart EventKind = "start"
	EventFile  EventKind = "file"
	EventText  EventKind = "text"
)

// Event is one inbound chat event.
type Event struct {
	UserID   string
	Kind     EventKind
	FileName string
	Data     []byte
	Text     string
}

// Generator produces raw model text for a history and dataset summary.
type Generator interface {
	Generate(ctx context.Context, history []session.Message, summary string) (string, error)
}

// Recorder persists finished turns.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Options wires an Engine.
type Options struct {
	Store     *session.Store
	Generator Generator
	Sandbox   sandbox.Sandbox
	Formatter *respond.Formatter
	// Journal is optional.
	Journal Recorder
	Summary dataset.SummaryOptions
	Logger  *zap.Logger
}

// Engine handles chat events. It is safe for concurrent use; turns for the
// same user run one at a time in arrival order.
type Engine struct {
	store   *session.Store
	gen     Generator
	sb      sandbox.Sandbox
	fmt     *respond.Formatter
	journal Recorder
	summary dataset.SummaryOptions
	log     *zap.Logger
}

// New validates opts and returns an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Generator == nil || opts.Sandbox == nil {
		return nil, errors.New("engine needs a store, a generator and a sandbox")
	}
	if opts.Formatter == nil {
		opts.Formatter = respond.New(respond.MarkupPlain)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Summary.SampleRows == 0 && opts.Summary.MaxTokens == 0 {
		opts.Summary = dataset.DefaultSummaryOptions()
	}
	return &Engine{
		store:   opts.Store,
		gen:     opts.Generator,
		sb:      opts.Sandbox,
		fmt:     opts.Formatter,
		journal: opts.Journal,
		summary: opts.Summary,
		log:     opts.Logger.Named("engine"),
	}, nil
}

// Store exposes the session store the engine writes to.
func (e *Engine) Store() *session.Store { return e.store }

// Handle processes ev and returns the reply parts. It never panics; any
// fault inside a turn becomes one error part.
func (e *Engine) Handle(ctx context.Context, ev Event) (parts []respond.Part) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("turn panicked",
				zap.String("user_id", ev.UserID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			parts = []respond.Part{e.fmt.Error(MsgInternal)}
		}
	}()
	switch ev.Kind {
	case EventStart:
		return []respond.Part{e.fmt.Notice(MsgStart)}
	case EventFile:
		return e.handleUpload(ctx, ev)
	case EventText:
		return e.handleQuery(ctx, ev.UserID, ev.Text)
	default:
		e.log.Warn("unknown event kind", zap.String("kind", string(ev.Kind)))
		return nil
	}
}

func (e *Engine) handleUpload(ctx context.Context, ev Event) []respond.Part {
	t, err := ingest.Decode(ev.FileName, ev.Data)
	if err != nil {
		var unsupported *ingest.UnsupportedFileError
		if errors.As(err, &unsupported) {
			return []respond.Part{e.fmt.Error(MsgUnsupported)}
		}
		e.log.Warn("decode upload",
			zap.String("user_id", ev.UserID),
			zap.String("file", ev.FileName),
			zap.Error(err))
		return []respond.Part{e.fmt.Error(MsgUnreadable)}
	}
	// waits for an in-flight turn so it cannot land in the new session
	unlock, err := e.store.Lock(ctx, ev.UserID)
	if err != nil {
		return []respond.Part{e.fmt.Error(MsgInternal)}
	}
	defer unlock()
	e.store.Replace(ev.UserID, t, ev.FileName)
	return []respond.Part{e.fmt.Notice(MsgLoaded)}
}

func (e *Engine) handleQuery(ctx context.Context, userID, question string) []respond.Part {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil
	}
	unlock, err := e.store.Lock(ctx, userID)
	if err != nil {
		return []respond.Part{e.fmt.Error(MsgInternal)}
	}
	defer unlock()

	sess, ok := e.store.Get(userID)
	if !ok {
		return []respond.Part{e.fmt.Error(MsgNeedFile)}
	}
	e.store.Touch(userID)

	history := append(sess.History, session.Message{Role: session.RoleUser, Content: question})
	summary := dataset.Summarize(sess.Table, e.summary)

	raw, err := e.generate(ctx, history, summary)
	if err != nil {
		return []respond.Part{e.fmt.Error(MsgGenerateFailed + err.Error())}
	}
	code := codegen.NewCode(raw)

	res := e.sb.Execute(sandbox.WithUser(ctx, userID), code.Source, sess.Table)
	parts := e.fmt.Format(res)

	err = e.store.AppendTurn(userID, sess.ID,
		session.Message{Role: session.RoleUser, Content: question},
		session.Message{Role: session.RoleAssistant, Content: code.Raw})
	if err != nil {
		// evicted or replaced while the turn ran; the reply is still delivered
		e.log.Info("turn not recorded in history", zap.String("user_id", userID), zap.Error(err))
	}
	e.record(ctx, sess, question, code.Source, res)
	return parts
}

// generate calls the generator, retrying once on a transient failure.
func (e *Engine) generate(ctx context.Context, history []session.Message, summary string) (string, error) {
	raw, err := e.gen.Generate(ctx, history, summary)
	var gerr *codegen.GenerationError
	if err != nil && errors.As(err, &gerr) && gerr.Retryable() && ctx.Err() == nil {
		e.log.Info("retrying transient generation failure", zap.Error(err))
		raw, err = e.gen.Generate(ctx, history, summary)
	}
	return raw, err
}

func (e *Engine) record(ctx context.Context, sess *session.Session, question, code string, res sandbox.Result) {
	if e.journal == nil {
		return
	}
	err := e.journal.Record(context.WithoutCancel(ctx), journal.Entry{
		UserID:    sess.UserID,
		SessionID: sess.ID,
		Question:  question,
		Code:      code,
		Outcome:   string(res.Outcome),
		Reason:    res.Reason,
		Duration:  res.Duration,
		CreatedAt: time.Now(),
	})
	if err != nil {
		e.log.Warn("journal record failed", zap.String("user_id", sess.UserID), zap.Error(err))
	}
}
