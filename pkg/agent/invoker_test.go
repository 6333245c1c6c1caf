package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/triad/pkg/orchestrator"
)

type fakeCompleter struct {
	system   string
	messages []ChatMessage
	reply    string
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt string, messages []ChatMessage) (*LLMResponse, error) {
	f.system = systemPrompt
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	return &LLMResponse{Content: f.reply}, nil
}

func testHistory(sources ...string) []orchestrator.Message {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]orchestrator.Message, len(sources))
	for i, s := range sources {
		out[i] = orchestrator.Message{Source: s, Content: s + " says", Sequence: i, Timestamp: base}
	}
	return out
}

func TestBuildConversation(t *testing.T) {
	t.Run("should map own messages to assistant and tag others", func(t *testing.T) {
		conv := BuildConversation("reviewer", testHistory("user", "coder", "reviewer", "integrator"))
		require.Len(t, conv, 3)
		assert.Equal(t, ChatMessage{Role: ChatRoleUser, Content: "user says\n\n[coder]\ncoder says"}, conv[0])
		assert.Equal(t, ChatMessage{Role: ChatRoleAssistant, Content: "reviewer says"}, conv[1])
		assert.Equal(t, ChatMessage{Role: ChatRoleUser, Content: "[integrator]\nintegrator says"}, conv[2])
	})

	t.Run("should ask to continue when the role spoke last", func(t *testing.T) {
		conv := BuildConversation("coder", testHistory("user", "coder"))
		require.Len(t, conv, 3)
		assert.Equal(t, ChatRoleAssistant, conv[1].Role)
		assert.Equal(t, ChatMessage{Role: ChatRoleUser, Content: continuePrompt}, conv[2])
	})

	t.Run("should not append a continuation after a user turn", func(t *testing.T) {
		conv := BuildConversation("coder", testHistory("user"))
		require.Len(t, conv, 1)
		assert.Equal(t, "user says", conv[0].Content)
	})
}

func TestRoleInvoker(t *testing.T) {
	role := orchestrator.Role{Name: "coder", Responsibility: "writes code", Instructions: "You are the coder."}

	t.Run("should send instructions as system prompt", func(t *testing.T) {
		fc := &fakeCompleter{reply: "  print('hi')\n"}
		inv := NewRoleInvoker(fc, zerolog.Nop())

		out, err := inv.Invoke(context.Background(), role, testHistory("user"))
		require.NoError(t, err)
		assert.Equal(t, "print('hi')", out)
		assert.Equal(t, "You are the coder.", fc.system)
	})

	t.Run("should keep the error kind of model failures", func(t *testing.T) {
		fc := &fakeCompleter{err: &ModelError{Kind: KindRateLimit, Provider: "mistral", Err: errors.New("busy")}}
		inv := NewRoleInvoker(fc, zerolog.Nop())

		_, err := inv.Invoke(context.Background(), role, testHistory("user"))
		var ek orchestrator.ErrorKinder
		require.True(t, errors.As(err, &ek))
		assert.Equal(t, KindRateLimit, ek.ErrorKind())
	})

	t.Run("should reject blank answers", func(t *testing.T) {
		inv := NewRoleInvoker(&fakeCompleter{reply: "   "}, zerolog.Nop())
		_, err := inv.Invoke(context.Background(), role, testHistory("user"))
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestSelectorPicker(t *testing.T) {
	roles := []orchestrator.Role{
		{Name: "coder", Responsibility: "writes the first version"},
		{Name: "reviewer", Responsibility: "reviews code"},
		{Name: "integrator", Responsibility: "produces the final code"},
	}
	candidates := []orchestrator.RoleName{"reviewer", "integrator"}

	t.Run("should format the prompt and parse the answer", func(t *testing.T) {
		fc := &fakeCompleter{reply: "Integrator."}
		p := NewSelectorPicker(fc, zerolog.Nop())

		got, err := p.Pick(context.Background(), testHistory("user", "observer"), roles, candidates)
		require.NoError(t, err)
		assert.Equal(t, orchestrator.RoleName("integrator"), got)

		require.Len(t, fc.messages, 1)
		prompt := fc.messages[0].Content
		assert.Contains(t, prompt, "coder: writes the first version")
		assert.Contains(t, prompt, "observer: observer says")
		assert.Contains(t, prompt, "[reviewer, integrator]")
		assert.False(t, strings.Contains(prompt, "{roles}"))
	})

	t.Run("should fail when no candidate is named", func(t *testing.T) {
		p := NewSelectorPicker(&fakeCompleter{reply: "coder"}, zerolog.Nop())
		_, err := p.Pick(context.Background(), testHistory("user"), roles, candidates)
		assert.Error(t, err)
	})

	t.Run("should use a custom template", func(t *testing.T) {
		fc := &fakeCompleter{reply: "reviewer"}
		p := NewSelectorPicker(fc, zerolog.Nop()).WithPrompt("pick from {participants}")
		_, err := p.Pick(context.Background(), nil, roles, candidates)
		require.NoError(t, err)
		assert.Equal(t, "pick from [reviewer, integrator]", fc.messages[0].Content)
	})
}

func TestParseSpeaker(t *testing.T) {
	candidates := []orchestrator.RoleName{"coder", "reviewer"}
	tests := []struct {
		answer string
		want   orchestrator.RoleName
		ok     bool
	}{
		{"coder", "coder", true},
		{"  `Reviewer`  ", "reviewer", true},
		{"I think reviewer, then coder", "reviewer", true},
		{"nobody", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseSpeaker(tt.answer, candidates)
		assert.Equal(t, tt.ok, ok, tt.answer)
		assert.Equal(t, tt.want, got, tt.answer)
	}
}
