package gen

import (
	"regexp"
	"strings"
)

var codeBlockPattern = regexp.MustCompile("(?s)```(?:\\w+\\n)?(.*?)```")

// ExtractCodeBlocks returns the bodies of all fenced code blocks in a model response, in
// first-to-last order. An optional language tag on the opening fence is discarded and block
// bodies are trimmed of surrounding whitespace
func ExtractCodeBlocks(response string) []string {
	matches := codeBlockPattern.FindAllStringSubmatch(response, -1)

	var blocks []string
	for _, match := range matches {
		body := strings.TrimSpace(match[1])
		if body != "" {
			blocks = append(blocks, body)
		}
	}
	return blocks
}
