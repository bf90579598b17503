package langchain

import (
	"regexp"
	"strings"
)

// Reasoning models served locally (qwen, deepseek) prefix answers with a think block.
var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// cleanCompletion strips reasoning blocks and surrounding whitespace.
func cleanCompletion(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
