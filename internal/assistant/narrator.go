package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/deal-conversations/internal/apperr"
	"github.com/capitalize-ai/deal-conversations/internal/llm"
	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/pkg/metrics"
)

const narrationInstructions = `You are EVA, an assistant embedded in a commercial lending deal room.
Rewrite the draft reply below for the deal team. Keep every lender name, number,
percentage and day count exactly as written. Do not add lenders, figures or
promises that are not in the draft. Answer in plain text, at most 120 words.`

// LLMNarrator rewrites reply prose with a language model.
type LLMNarrator struct {
	client      llm.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewLLMNarrator creates a narrator. An empty model uses the provider default.
func NewLLMNarrator(client llm.Client, model string) *LLMNarrator {
	return &LLMNarrator{
		client:      client,
		model:       model,
		maxTokens:   400,
		temperature: 0.3,
	}
}

// Narrate asks the model to restate draft. The caller keeps the draft when
// this returns an error.
func (n *LLMNarrator) Narrate(ctx context.Context, conv model.Conversation, trigger model.Message, draft Reply) (string, error) {
	start := time.Now()
	resp, err := n.client.Complete(ctx, &llm.CompletionRequest{
		Model:       n.model,
		MaxTokens:   n.maxTokens,
		Temperature: n.temperature,
		Messages: []llm.ChatMessage{
			{Role: "user", Content: narrationPrompt(conv, trigger, draft)},
		},
	})
	if err != nil {
		metrics.RecordLLM(n.client.Name(), n.model, "error", time.Since(start).Seconds(), 0, 0)
		return "", apperr.Upstream(n.client.Name(), err)
	}
	metrics.RecordLLM(n.client.Name(), resp.Model, "ok", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	return strings.TrimSpace(resp.Content), nil
}

func narrationPrompt(conv model.Conversation, trigger model.Message, draft Reply) string {
	var b strings.Builder
	b.WriteString(narrationInstructions)
	fmt.Fprintf(&b, "\n\nDeal: %s, %s %s, status %s.\n",
		borrowerLabel(conv), formatAmount(conv.DealAmount), conv.DealType.Label(), conv.Status)
	fmt.Fprintf(&b, "%s (%s) asked: %s\n", trigger.SenderName, trigger.SenderRole, trigger.Content)
	fmt.Fprintf(&b, "\nDraft reply:\n%s", draft.Content)
	return b.String()
}
