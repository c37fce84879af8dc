package utils

import "strings"

// Token estimation for prompt budgeting. The 4 chars per token heuristic is
// close enough for the chat models we target.

const truncMarker = "\n...(truncated)\n"

// CountTokens estimates the number of tokens in the given text.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	// Ensure at least 1 token for any non-empty text
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TruncateToTokenLimit cuts text to roughly fit within limit tokens. When it
// cuts, it prefers the last line break inside the budget and appends a
// truncation marker that is counted against the budget.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	charLimit := limit * 4
	if charLimit >= len(runes) {
		return text
	}
	keep := charLimit - len([]rune(truncMarker))
	if keep <= 0 {
		return string(runes[:charLimit])
	}
	cut := string(runes[:keep])
	if i := strings.LastIndexByte(cut, '\n'); i > keep/2 {
		cut = cut[:i]
	}
	return cut + truncMarker
}
