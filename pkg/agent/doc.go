// Package agent is the model capability behind role turns.
//
// It wraps chat-completion providers (OpenAI-compatible endpoints such as
// Mistral, and Anthropic) behind LLMProvider, fails over across auth
// profiles, and classifies provider failures as transport, rate_limit or
// protocol errors.
//
// Usage:
//
//	client, _ := agent.NewClient(agent.Config{Profiles: profiles, Model: agent.DefaultModelConfig()})
//	invoker := agent.NewRoleInvoker(client, logger)
//	picker := agent.NewSelectorPicker(client, logger)
package agent
