package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harun/triad/internal/tracing"
	"github.com/harun/triad/pkg/orchestrator"
)

// continuePrompt is appended when a role's own message closes the history
const continuePrompt = "Continue with your next response."

// Completer sends one chat request to the model backend
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, messages []ChatMessage) (*LLMResponse, error)
}

// RoleInvoker turns a role turn into a chat completion. The role's
// instructions become the system prompt, the role's own earlier messages
// become assistant messages and everything else is a user message tagged
// with its source.
type RoleInvoker struct {
	completer Completer
	logger    zerolog.Logger
}

var _ orchestrator.Invoker = (*RoleInvoker)(nil)

// NewRoleInvoker creates an invoker backed by completer
func NewRoleInvoker(completer Completer, logger zerolog.Logger) *RoleInvoker {
	return &RoleInvoker{
		completer: completer,
		logger:    logger.With().Str("component", "role_invoker").Logger(),
	}
}

// Invoke produces the role's next message
func (r *RoleInvoker) Invoke(ctx context.Context, role orchestrator.Role, history []orchestrator.Message) (string, error) {
	messages := BuildConversation(role.Name, history)
	logger := tracing.LoggerFromContext(ctx, r.logger)
	logger.Debug().
		Int("messages", len(messages)).
		Int("estimated_tokens", EstimateTokens(messages)).
		Msg("Invoking model for role")

	response, err := r.completer.Complete(ctx, role.Instructions, messages)
	if err != nil {
		return "", err
	}

	content := strings.TrimSpace(response.Content)
	if content == "" {
		return "", &ModelError{Kind: KindProtocol, Provider: "agent", Err: ErrEmptyResponse}
	}
	return content, nil
}

// BuildConversation maps the shared history onto the chat roles seen by one
// role. Consecutive messages with the same chat role are merged.
func BuildConversation(self orchestrator.RoleName, history []orchestrator.Message) []ChatMessage {
	var out []ChatMessage
	for _, msg := range history {
		chat := ChatMessage{Role: ChatRoleUser, Content: msg.Content}
		switch msg.Source {
		case string(self):
			chat.Role = ChatRoleAssistant
		case orchestrator.SourceUser:
		default:
			chat.Content = fmt.Sprintf("[%s]\n%s", msg.Source, msg.Content)
		}

		if n := len(out); n > 0 && out[n-1].Role == chat.Role {
			out[n-1].Content += "\n\n" + chat.Content
			continue
		}
		out = append(out, chat)
	}

	if len(out) == 0 || out[len(out)-1].Role == ChatRoleAssistant {
		out = append(out, ChatMessage{Role: ChatRoleUser, Content: continuePrompt})
	}
	return out
}
