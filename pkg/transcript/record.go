package transcript

import (
	"time"

	"github.com/harun/triad/pkg/orchestrator"
)

const (
	DefaultAppendixSize = 8
	DefaultSnippetChars = 200
	DefaultLanguage     = "python"
	DefaultMarker       = "TERMINATE"
)

// Options controls how records are projected and rendered
type Options struct {
	Roles        []orchestrator.Role // captions, output styles and canonical order
	Marker       string              // termination keyword reported by the workflow check
	CodeLanguage string              // fence language for code-style roles
	AppendixSize int                 // messages in the raw appendix
	SnippetChars int                 // characters per appendix snippet
}

func (o Options) withDefaults() Options {
	if o.Marker == "" {
		o.Marker = DefaultMarker
	}
	if o.CodeLanguage == "" {
		o.CodeLanguage = DefaultLanguage
	}
	if o.AppendixSize <= 0 {
		o.AppendixSize = DefaultAppendixSize
	}
	if o.SnippetChars <= 0 {
		o.SnippetChars = DefaultSnippetChars
	}
	return o
}

// Entry is one rendered message of the record
type Entry struct {
	Sequence int                      `json:"sequence_index"`
	Source   string                   `json:"source"`
	Caption  string                   `json:"caption"`
	Output   orchestrator.OutputStyle `json:"output,omitempty"`
	Content  string                   `json:"content"`
}

// Record is the read-only projection of a run
type Record struct {
	RunNumber int64                `json:"run_number"`
	RunID     string               `json:"run_id"`
	Resumes   int                  `json:"resumes"`
	Task      string               `json:"task"`
	Status    orchestrator.Status  `json:"status"`
	Outcome   orchestrator.Outcome `json:"outcome,omitempty"`
	Condition string               `json:"condition,omitempty"`
	Reason    string               `json:"reason,omitempty"`
	StartedAt time.Time            `json:"started_at"`
	EndedAt   *time.Time           `json:"ended_at,omitempty"`
	Elapsed   time.Duration        `json:"elapsed"`
	Entries   []Entry              `json:"entries"`
	Notes     []string             `json:"notes,omitempty"`
	Workflow  WorkflowCheck        `json:"workflow"`
}

// FromState projects a run state into a record. The state is not modified.
func FromState(state orchestrator.RunState, opts Options) Record {
	opts = opts.withDefaults()

	rec := Record{
		RunNumber: state.RunNumber,
		RunID:     state.RunID,
		Resumes:   state.Resumes,
		Task:      state.Task(),
		Status:    state.Status,
		Outcome:   state.Outcome,
		Condition: string(state.TerminatingCondition),
		Reason:    state.TerminationReason,
		StartedAt: state.StartedAt,
		Elapsed:   state.Elapsed,
	}
	if state.EndedAt != nil {
		ended := *state.EndedAt
		rec.EndedAt = &ended
	}

	styles := make(map[string]orchestrator.Role, len(opts.Roles))
	for _, r := range opts.Roles {
		styles[string(r.Name)] = r
	}

	observed := make([]string, 0, len(state.Messages))
	var roleContents []string
	for _, msg := range state.Messages {
		entry := Entry{
			Sequence: msg.Sequence,
			Source:   msg.Source,
			Caption:  msg.Source,
			Content:  msg.Content,
		}
		if role, ok := styles[msg.Source]; ok {
			entry.Output = role.Output
			if role.Caption != "" {
				entry.Caption = role.Caption
			}
		}
		rec.Entries = append(rec.Entries, entry)
		observed = append(observed, msg.Source)
		if msg.FromRole() {
			roleContents = append(roleContents, msg.Content)
		}
	}

	switch state.Status {
	case orchestrator.StatusCancelled:
		rec.Notes = append(rec.Notes, orchestrator.ErrCancellationRequested.Error())
	case orchestrator.StatusFailed:
		rec.Notes = append(rec.Notes, "run failed: "+state.Error)
	}

	expected := []string{orchestrator.SourceUser}
	for _, r := range opts.Roles {
		expected = append(expected, string(r.Name))
	}
	rec.Workflow = CheckWorkflow(observed, roleContents, expected, opts.Marker)

	return rec
}

// Recorder collects a turn-event stream. It is fed by a single consumer.
type Recorder struct {
	messages []orchestrator.Message
	result   *orchestrator.RunResult
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Observe records one event of the stream
func (r *Recorder) Observe(ev orchestrator.Event) {
	switch ev.Kind {
	case orchestrator.EventMessage:
		if ev.Message != nil {
			r.messages = append(r.messages, *ev.Message)
		}
	case orchestrator.EventResult:
		if ev.Result != nil {
			res := *ev.Result
			r.result = &res
		}
	}
}

// Messages returns the observed messages
func (r *Recorder) Messages() []orchestrator.Message {
	out := make([]orchestrator.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Result returns the final result once the stream ended
func (r *Recorder) Result() (orchestrator.RunResult, bool) {
	if r.result == nil {
		return orchestrator.RunResult{}, false
	}
	return *r.result, true
}
