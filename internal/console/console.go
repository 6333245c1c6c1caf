// Package console prints the turn stream of a run for a person watching it.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/harun/triad/pkg/orchestrator"
)

// Modes
const (
	ModeRich  = "rich"
	ModePlain = "plain"
)

// Preview limits in characters
const (
	RichPreviewChars  = 3000
	PlainPreviewChars = 2000
)

const (
	bannerWidth    = 60
	truncateMarker = "\n... (content truncated) ..."
)

// Config configures a Presenter
type Config struct {
	Mode  string // rich or plain, defaults to rich
	Color bool
}

// Presenter renders events to a writer
type Presenter struct {
	mu    sync.Mutex
	out   io.Writer
	mode  string
	color bool
}

// New creates a presenter
func New(out io.Writer, cfg Config) *Presenter {
	mode := cfg.Mode
	if mode != ModePlain {
		mode = ModeRich
	}
	return &Presenter{out: out, mode: mode, color: cfg.Color}
}

// colorize applies color to text if color is enabled
func (p *Presenter) colorize(text string, attributes ...color.Attribute) string {
	if !p.color {
		return text
	}
	c := color.New(attributes...)
	c.EnableColor()
	return c.Sprint(text)
}

func (p *Presenter) println(a ...interface{}) {
	fmt.Fprintln(p.out, a...)
}

// Banner announces the start of a run
func (p *Presenter) Banner(runNumber int64, mode string, resumes int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	title := fmt.Sprintf("Starting task (run #%d, %s mode)", runNumber, mode)
	if resumes > 0 {
		title = fmt.Sprintf("Resuming task (run #%d, %s mode, resume %d)", runNumber, mode, resumes)
	}

	if p.mode == ModePlain {
		p.println(title)
		return
	}
	line := strings.Repeat("=", bannerWidth)
	p.println()
	p.println(p.colorize(line, color.FgCyan))
	p.println(p.colorize(title, color.Bold))
	p.println(p.colorize(line, color.FgCyan))
	p.println()
}

// Notice prints an informational line
func (p *Presenter) Notice(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.println(p.colorize(fmt.Sprintf(format, args...), color.FgHiBlack))
}

// Observe renders one event
func (p *Presenter) Observe(ev orchestrator.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case orchestrator.EventMessage:
		if ev.Message != nil {
			p.message(*ev.Message)
		}
	case orchestrator.EventResult:
		if ev.Result != nil {
			p.result(*ev.Result)
		}
	}
}

func (p *Presenter) message(msg orchestrator.Message) {
	if p.mode == ModePlain {
		p.println(fmt.Sprintf("----- %s -----", msg.Source))
		p.println(Preview(msg.Content, PlainPreviewChars, "…"))
		p.println()
		return
	}

	line := strings.Repeat("─", bannerWidth)
	p.println()
	p.println(p.colorize(line, color.FgHiBlack))
	p.println(p.colorize("📤 "+msg.Source, sourceColor(msg.Source), color.Bold))
	p.println(p.colorize(line, color.FgHiBlack))
	p.println(Preview(msg.Content, RichPreviewChars, truncateMarker))
}

func (p *Presenter) result(res orchestrator.RunResult) {
	attr := color.FgGreen
	switch res.Status {
	case orchestrator.StatusCancelled:
		attr = color.FgYellow
	case orchestrator.StatusFailed:
		attr = color.FgRed
	}
	p.println()
	p.println(p.colorize(res.Summary(), attr, color.Bold))
}

func sourceColor(source string) color.Attribute {
	switch source {
	case orchestrator.SourceUser:
		return color.FgBlue
	case orchestrator.SourceSystem:
		return color.FgYellow
	default:
		return color.FgGreen
	}
}

// Preview returns content cut to limit characters with marker appended when cut
func Preview(content string, limit int, marker string) string {
	r := []rune(content)
	if len(r) <= limit {
		return content
	}
	return string(r[:limit]) + marker
}
