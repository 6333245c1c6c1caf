package transcript

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/harun/triad/pkg/orchestrator"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// Render produces the markdown form of a record. The output depends only on
// rec and opts.
func Render(rec Record, opts Options) string {
	opts = opts.withDefaults()

	var b strings.Builder
	if rec.Resumes > 0 {
		fmt.Fprintf(&b, "# Task Record #%d (resume %d)\n\n", rec.RunNumber, rec.Resumes)
	} else {
		fmt.Fprintf(&b, "# Task Record #%d\n\n", rec.RunNumber)
	}

	b.WriteString("## Task\n\n")
	b.WriteString(strings.TrimSpace(rec.Task))
	b.WriteString("\n\n")

	renderRun(&b, rec)

	b.WriteString("## Transcript\n\n")
	for _, e := range rec.Entries {
		renderEntry(&b, e, opts)
	}
	for _, note := range rec.Notes {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", orchestrator.SourceSystem, note)
	}

	renderWorkflow(&b, rec.Workflow)
	renderAppendix(&b, rec.Entries, opts)

	b.WriteString("---\n\nThis record was generated automatically.\n")
	return b.String()
}

func renderRun(b *strings.Builder, rec Record) {
	b.WriteString("## Run\n\n")
	fmt.Fprintf(b, "- Run ID: %s\n", rec.RunID)
	fmt.Fprintf(b, "- Started: %s\n", rec.StartedAt.UTC().Format(timeLayout))
	if rec.EndedAt != nil {
		fmt.Fprintf(b, "- Ended: %s\n", rec.EndedAt.UTC().Format(timeLayout))
	} else {
		b.WriteString("- Ended: -\n")
	}
	fmt.Fprintf(b, "- Duration: %s\n", rec.Elapsed.Round(time.Millisecond))
	if rec.Outcome != "" {
		fmt.Fprintf(b, "- Status: %s (%s)\n", rec.Status, rec.Outcome)
	} else {
		fmt.Fprintf(b, "- Status: %s\n", rec.Status)
	}
	if rec.Condition != "" {
		fmt.Fprintf(b, "- Terminated by: %s (%s)\n", rec.Condition, rec.Reason)
	}
	b.WriteString("\n")
}

func renderEntry(b *strings.Builder, e Entry, opts Options) {
	fmt.Fprintf(b, "### %s\n\n", e.Caption)

	switch {
	case e.Source == orchestrator.SourceUser:
		b.WriteString(strings.TrimSpace(e.Content))
		b.WriteString("\n\n")
	case e.Output == orchestrator.OutputAdvice:
		b.WriteString(strings.TrimSpace(UnfenceList(e.Content)))
		b.WriteString("\n\n")
	default:
		body, trailer := SplitFences(e.Content)
		lang := ""
		if e.Output == orchestrator.OutputCode || LooksLikeCode(body) {
			lang = opts.CodeLanguage
		}
		fmt.Fprintf(b, "```%s\n%s\n```\n\n", lang, body)
		if trailer != "" {
			b.WriteString(trailer)
			b.WriteString("\n\n")
		}
	}
}

func renderWorkflow(b *strings.Builder, w WorkflowCheck) {
	b.WriteString("## Workflow Check\n\n")
	verdict := "not as expected"
	if w.InOrder {
		verdict = "as expected"
	}
	fmt.Fprintf(b, "- Order: %s (%s).\n", strings.Join(w.Expected, " → "), verdict)
	if w.MarkerDetected {
		fmt.Fprintf(b, "- Termination: stopped after %q was detected (matches configuration).\n", w.Marker)
	} else {
		fmt.Fprintf(b, "- Termination: %q not detected.\n", w.Marker)
	}
	b.WriteString("\n")
}

func renderAppendix(b *strings.Builder, entries []Entry, opts Options) {
	b.WriteString("## Appendix: Raw Message Log (excerpt)\n\n```text\n")
	for i, e := range entries {
		if i == opts.AppendixSize {
			break
		}
		fmt.Fprintf(b, "[%s] %s\n", e.Source, Snippet(e.Content, opts.SnippetChars))
	}
	b.WriteString("```\n\n")
}

// Snippet truncates content to limit characters, marks truncation with an
// ellipsis and flattens newlines.
func Snippet(content string, limit int) string {
	out := content
	if utf8.RuneCountInString(content) > limit {
		runes := []rune(content)
		out = string(runes[:limit]) + "…"
	}
	return strings.ReplaceAll(out, "\n", " ")
}
