package codegen

import (
	"regexp"
	"strings"
)

// fenceRe matches the first fenced block: three backticks, an optional
// language tag, a newline, then everything up to the next three backticks.
// A fence nested inside the block ends it early.
var fenceRe = regexp.MustCompile("(?s)```[A-Za-z0-9_+.#-]*[ \\t]*\\r?\\n(.*?)```")

// Extract returns the trimmed interior of the first fenced code block in
// raw, or raw trimmed when there is none.
func Extract(raw string) string {
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

// Code pairs an oracle response with the code extracted from it.
type Code struct {
	Raw    string
	Source string
}

// NewCode extracts the source from raw.
func NewCode(raw string) Code {
	return Code{Raw: raw, Source: Extract(raw)}
}
