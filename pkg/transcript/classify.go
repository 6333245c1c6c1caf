package transcript

import (
	"strings"
	"unicode/utf8"
)

const (
	// longLineThreshold marks single-line content that is treated as code
	longLineThreshold = 400
	// listShare is the fraction of list lines that makes a fenced block a list
	listShare = 0.6
)

var codeHints = []string{
	"def ",
	"class ",
	"import ",
	"from ",
	"#!/usr/bin",
	"console.log",
	"public ",
	"func ",
	"package ",
}

// LooksLikeCode guesses whether text is source code
func LooksLikeCode(text string) bool {
	if !strings.Contains(text, "\n") && utf8.RuneCountInString(text) > longLineThreshold {
		return true
	}
	for _, hint := range codeHints {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}

func isFenced(text string) bool {
	return strings.HasPrefix(text, "```") && strings.HasSuffix(text, "```") && len(text) >= 6
}

func isListLine(line string) bool {
	return strings.HasPrefix(line, "-") || strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "+ ")
}

// UnfenceList removes the fence around a block that is mostly list items.
// Anything else is returned unchanged.
func UnfenceList(text string) string {
	stripped := strings.TrimSpace(text)
	if !isFenced(stripped) {
		return text
	}

	_, body, found := strings.Cut(stripped, "\n")
	if !found {
		return text
	}
	body = strings.TrimSuffix(body, "```")

	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(body), "\n") {
		lines = append(lines, strings.TrimSpace(l))
	}
	if len(lines) == 0 {
		return text
	}

	listLines := 0
	for _, l := range lines {
		if isListLine(l) {
			listLines++
		}
	}
	need := int(listShare * float64(len(lines)))
	if need < 1 {
		need = 1
	}
	if listLines >= need {
		return strings.Join(lines, "\n")
	}
	return text
}

// StripFences returns the body between the first and last fence lines.
// Content that does not open with a fence is only trimmed.
func StripFences(text string) string {
	body, _ := SplitFences(text)
	return body
}

// SplitFences is StripFences that also returns the text following the
// closing fence, such as a trailing keyword line.
func SplitFences(text string) (body, trailer string) {
	stripped := strings.TrimSpace(text)
	if !strings.HasPrefix(stripped, "```") {
		return stripped, ""
	}

	lines := strings.Split(stripped, "\n")
	end := -1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.HasPrefix(lines[i], "```") {
			end = i
			break
		}
	}
	if end < 0 {
		return stripped, ""
	}
	body = strings.Join(lines[1:end], "\n")
	trailer = strings.TrimSpace(strings.Join(lines[end+1:], "\n"))
	return body, trailer
}
