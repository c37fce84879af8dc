// Package respond turns execution results into chat reply parts.
package respond

import (
	"fmt"
	"html"
	"strings"

	"github.com/KaramelBytes/datachat/internal/sandbox"
)

// Kind labels a reply part.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindError Kind = "error"
)

// Markup dialects a transport can render.
const (
	MarkupMarkdownV2 = "markdownv2"
	MarkupHTML       = "html"
	MarkupPlain      = "plain"
)

// DefaultMaxTextRunes keeps a text part under common chat message limits.
const DefaultMaxTextRunes = 3500

const truncatedMarker = "… (truncated)"

// Part is one outbound message. Text carries markup already escaped for
// Markup; Image carries PNG bytes.
type Part struct {
	Kind   Kind   `json:"kind"`
	Text   string `json:"text,omitempty"`
	Image  []byte `json:"image,omitempty"`
	Markup string `json:"markup,omitempty"`
}

// Formatter renders results for one markup dialect.
type Formatter struct {
	Markup       string
	MaxTextRunes int
}

// New returns a formatter for markup with the default text cap.
func New(markup string) *Formatter {
	return &Formatter{Markup: markup, MaxTextRunes: DefaultMaxTextRunes}
}

// ValidMarkup reports whether m names a supported dialect.
func ValidMarkup(m string) bool {
	switch m {
	case MarkupMarkdownV2, MarkupHTML, MarkupPlain:
		return true
	}
	return false
}

// Format maps a result to parts. A failure yields exactly one error part.
// A success yields a text part when there is output and an image part when
// a plot was produced, in that order; nothing yields no parts.
func (f *Formatter) Format(r sandbox.Result) []Part {
	if r.Outcome == sandbox.Failure {
		return []Part{f.Error("Error executing code: " + r.Reason)}
	}
	var parts []Part
	if r.Text != "" {
		parts = append(parts, f.Text(r.Text))
	}
	if len(r.Image) > 0 {
		parts = append(parts, Part{Kind: KindImage, Image: r.Image})
	}
	return parts
}

// Text renders s as a preformatted block. Trailing newlines are dropped
// unless nothing else is left.
func (f *Formatter) Text(s string) Part {
	if trimmed := strings.TrimRight(s, "\n"); trimmed != "" {
		s = trimmed
	}
	s = f.clip(s)
	switch f.Markup {
	case MarkupHTML:
		return Part{Kind: KindText, Text: "<pre>" + html.EscapeString(s) + "</pre>", Markup: MarkupHTML}
	case MarkupPlain:
		return Part{Kind: KindText, Text: s, Markup: MarkupPlain}
	default:
		return Part{Kind: KindText, Text: "```\n" + escapeCode(s) + "\n```", Markup: MarkupMarkdownV2}
	}
}

// Error renders msg as an ordinary message.
func (f *Formatter) Error(msg string) Part {
	return Part{Kind: KindError, Text: f.Escape(f.clip(msg)), Markup: f.markup()}
}

// Notice renders an informational message such as an upload confirmation.
func (f *Formatter) Notice(msg string) Part {
	return Part{Kind: KindText, Text: f.Escape(msg), Markup: f.markup()}
}

// Escape quotes s for running text in the configured dialect.
func (f *Formatter) Escape(s string) string {
	switch f.Markup {
	case MarkupHTML:
		return html.EscapeString(s)
	case MarkupPlain:
		return s
	default:
		return escapeMarkdownV2(s)
	}
}

func (f *Formatter) markup() string {
	if ValidMarkup(f.Markup) {
		return f.Markup
	}
	return MarkupMarkdownV2
}

func (f *Formatter) clip(s string) string {
	limit := f.MaxTextRunes
	if limit <= 0 {
		limit = DefaultMaxTextRunes
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	keep := limit - len([]rune(truncatedMarker)) - 1
	if keep < 0 {
		keep = 0
	}
	return fmt.Sprintf("%s\n%s", string(r[:keep]), truncatedMarker)
}

const markdownV2Special = "_*[]()~`>#+-=|{}.!\\"

func escapeMarkdownV2(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// inside pre blocks only backslash and backtick are special
func escapeCode(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, "`", "\\`")
}
