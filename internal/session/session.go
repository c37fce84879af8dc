// Package session keeps one conversation per user: the uploaded table and
// the message history sent to the code generator.
package session

import (
	"errors"
	"time"

	"github.com/KaramelBytes/datachat/internal/dataset"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNoSession is returned when a user has no active session.
var ErrNoSession = errors.New("no active session")

// Message is one history entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session binds a user to a dataset and an ordered history. History[0] is
// always the system instruction.
type Session struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	SourceName string         `json:"source_name"`
	Table      *dataset.Table `json:"-"`
	History    []Message      `json:"history"`
	Turns      int            `json:"turns"`
	CreatedAt  time.Time      `json:"created_at"`
	LastActive time.Time      `json:"last_active"`
}

// snapshot copies s with its own history slice.
func (s *Session) snapshot() *Session {
	out := *s
	out.History = make([]Message, len(s.History))
	copy(out.History, s.History)
	return &out
}
