package draft

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/triagecore/triagecore/pkg/models"
)

// Producer proposes a reply draft for a conversation. The triage core never
// inspects the draft beyond handing it to a human for approval.
type Producer interface {
	Propose(ctx context.Context, intent models.Intent, snapshot *models.ConversationSnapshot) (string, error)
}

// LLMProducer drafts replies with a hosted model.
type LLMProducer struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
}

func NewLLMProducer(model llms.Model, temperature float64, maxTokens int) *LLMProducer {
	if maxTokens <= 0 {
		maxTokens = 400
	}
	return &LLMProducer{llm: model, temperature: temperature, maxTokens: maxTokens}
}

func (p *LLMProducer) Propose(ctx context.Context, intent models.Intent, snapshot *models.ConversationSnapshot) (string, error) {
	var b strings.Builder
	b.WriteString("You are a customer-support agent. Draft a short, friendly reply.\n")
	fmt.Fprintf(&b, "The customer's request was classified as %q.\n\n", intent)
	if snapshot != nil {
		msgs := snapshot.Messages
		if len(msgs) > 6 {
			msgs = msgs[len(msgs)-6:]
		}
		for _, m := range msgs {
			fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Body)
		}
	}
	b.WriteString("\nReply with the draft text only.")

	out, err := llms.GenerateFromSinglePrompt(ctx, p.llm, b.String(),
		llms.WithTemperature(p.temperature),
		llms.WithMaxTokens(p.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("drafting reply: %w", err)
	}
	log.Debug().Str("intent", string(intent)).Int("bytes", len(out)).Msg("reply drafted")
	return strings.TrimSpace(out), nil
}

// TemplateProducer is a deterministic fallback used when no model is
// configured and in tests.
type TemplateProducer struct{}

func (TemplateProducer) Propose(_ context.Context, intent models.Intent, _ *models.ConversationSnapshot) (string, error) {
	return fmt.Sprintf("Thanks for reaching out! A member of our team is looking into your %s request and will follow up shortly.",
		strings.ReplaceAll(string(intent), "_", " ")), nil
}
