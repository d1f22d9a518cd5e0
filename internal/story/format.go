package story

import "strings"

// Paragraphs splits story text on newlines and drops blank lines, keeping order.
func Paragraphs(text string) []string {
	var paragraphs []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		paragraphs = append(paragraphs, line)
	}
	return paragraphs
}
