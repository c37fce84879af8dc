package codegen

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/KaramelBytes/datachat/internal/ai"
)

// ErrorKind classifies generation failures for the caller's retry policy.
type ErrorKind string

const (
	KindTransient   ErrorKind = "transient"
	KindRateLimited ErrorKind = "rate_limited"
	KindQuota       ErrorKind = "quota"
	KindAuth        ErrorKind = "auth"
	KindMalformed   ErrorKind = "malformed"
	KindRejected    ErrorKind = "rejected" // unknown model or invalid parameter
	KindOther       ErrorKind = "other"
)

// ErrEmptyResponse is wrapped when the oracle answers with no content.
var ErrEmptyResponse = errors.New("empty response from model")

// GenerationError is every failure of Generate.
type GenerationError struct {
	Kind ErrorKind
	Err  error
}

func (e *GenerationError) Error() string { return e.Err.Error() }

func (e *GenerationError) Unwrap() error { return e.Err }

// Retryable reports whether one more attempt may succeed.
func (e *GenerationError) Retryable() bool { return e.Kind == KindTransient }

func classify(err error) ErrorKind {
	var (
		rl  *ai.RateLimitError
		qe  *ai.QuotaExceededError
		ae  *ai.AuthError
		se  *ai.ServerError
		ue  *ai.UnreachableError
		br  *ai.BadRequestError
		mnf *ai.ModelNotFoundError
		syn *json.SyntaxError
		typ *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, ErrEmptyResponse), errors.As(err, &syn), errors.As(err, &typ):
		return KindMalformed
	case errors.As(err, &rl):
		return KindRateLimited
	case errors.As(err, &qe):
		return KindQuota
	case errors.As(err, &ae):
		return KindAuth
	case errors.As(err, &br), errors.As(err, &mnf):
		return KindRejected
	case errors.Is(err, context.Canceled):
		return KindOther
	case errors.As(err, &se), errors.As(err, &ue), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}
	return KindOther
}
