// Package llm isolates the reasoning service behind a narrow interface:
// submit a system prompt and a user turn, receive text back. The
// extraction loop depends only on Provider, so any backend (a hosted
// model, a local serving proxy, a test double) slots in.
package llm

import "context"

// Provider is the capability the extraction loop requires from a
// reasoning service.
type Provider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
