package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harun/triad/internal/tracing"
	"github.com/harun/triad/pkg/orchestrator"
)

// DefaultSelectorPrompt asks the model for the next speaker. The
// placeholders {roles}, {history} and {participants} are filled per call.
const DefaultSelectorPrompt = `Choose the most suitable agent for the next step based on the current conversation.

Agent roles:
{roles}

Conversation so far:
{history}

Choose one agent from {participants}.

Selection rules:
1. For a new task or fresh user request, choose coder to start coding
2. If coder has just finished the code, choose reviewer to review it
3. If reviewer has given suggestions, choose integrator to integrate them
4. If integrator has finished, the task should end

Reply with the agent name only, without explanation.
`

// pickerHistoryChars caps each message quoted in the selector prompt
const pickerHistoryChars = 1000

// SelectorPicker asks the model to choose the next speaker among candidates
type SelectorPicker struct {
	completer Completer
	prompt    string
	logger    zerolog.Logger
}

var _ orchestrator.SpeakerPicker = (*SelectorPicker)(nil)

// NewSelectorPicker creates a picker using DefaultSelectorPrompt
func NewSelectorPicker(completer Completer, logger zerolog.Logger) *SelectorPicker {
	return &SelectorPicker{
		completer: completer,
		prompt:    DefaultSelectorPrompt,
		logger:    logger.With().Str("component", "selector_picker").Logger(),
	}
}

// WithPrompt returns a copy of the picker using a custom prompt template
func (p *SelectorPicker) WithPrompt(prompt string) *SelectorPicker {
	cp := *p
	cp.prompt = prompt
	return &cp
}

// Pick asks the model and returns the chosen candidate
func (p *SelectorPicker) Pick(ctx context.Context, history []orchestrator.Message, roles []orchestrator.Role, candidates []orchestrator.RoleName) (orchestrator.RoleName, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("no candidates to pick from")
	}

	prompt := FormatSelectorPrompt(p.prompt, history, roles, candidates)
	response, err := p.completer.Complete(ctx, "", []ChatMessage{{Role: ChatRoleUser, Content: prompt}})
	if err != nil {
		return "", err
	}

	name, ok := ParseSpeaker(response.Content, candidates)
	if !ok {
		return "", &ModelError{
			Kind:     KindProtocol,
			Provider: "agent",
			Err:      fmt.Errorf("selector answer %q names no candidate", strings.TrimSpace(response.Content)),
		}
	}

	logger := tracing.LoggerFromContext(ctx, p.logger)
	logger.Debug().Str("picked", string(name)).Msg("Model picked speaker")
	return name, nil
}

// FormatSelectorPrompt fills the selector prompt template
func FormatSelectorPrompt(template string, history []orchestrator.Message, roles []orchestrator.Role, candidates []orchestrator.RoleName) string {
	var rb strings.Builder
	for _, role := range roles {
		fmt.Fprintf(&rb, "%s: %s\n", role.Name, role.Responsibility)
	}

	var hb strings.Builder
	for _, msg := range history {
		content := msg.Content
		if r := []rune(content); len(r) > pickerHistoryChars {
			content = string(r[:pickerHistoryChars]) + "…"
		}
		fmt.Fprintf(&hb, "%s: %s\n", msg.Source, content)
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = string(c)
	}

	return strings.NewReplacer(
		"{roles}", strings.TrimRight(rb.String(), "\n"),
		"{history}", strings.TrimRight(hb.String(), "\n"),
		"{participants}", "["+strings.Join(names, ", ")+"]",
	).Replace(template)
}

// ParseSpeaker finds the candidate named in a model answer. An exact answer
// wins; otherwise the earliest mentioned candidate is taken.
func ParseSpeaker(answer string, candidates []orchestrator.RoleName) (orchestrator.RoleName, bool) {
	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(answer), "\"'`.*:"))
	for _, c := range candidates {
		if cleaned == strings.ToLower(string(c)) {
			return c, true
		}
	}

	best := -1
	var picked orchestrator.RoleName
	for _, c := range candidates {
		idx := strings.Index(cleaned, strings.ToLower(string(c)))
		if idx >= 0 && (best < 0 || idx < best) {
			best = idx
			picked = c
		}
	}
	return picked, best >= 0
}
