package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/triagecore/triagecore/pkg/models"
)

// Provider represents an LLM provider type
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderClaude Provider = "claude"
	ProviderOllama Provider = "ollama"
)

// Options configures the LLM-backed collaborator.
type Options struct {
	Provider    Provider `json:"provider"`
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	// DefaultConfidence is substituted when the model returns no score.
	DefaultConfidence float64 `json:"default_confidence,omitempty"`
}

// LLMCollaborator classifies messages by prompting a hosted model and
// parsing its JSON reply.
type LLMCollaborator struct {
	llm     llms.Model
	options Options
}

func NewLLMCollaborator(options Options) (*LLMCollaborator, error) {
	var model llms.Model
	var err error

	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.Model).
		Float64("temperature", options.Temperature).
		Msg("creating classification collaborator")

	switch options.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{
			openai.WithModel(options.Model),
			openai.WithToken(options.APIKey),
		}
		if options.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(options.BaseURL))
		}
		model, err = openai.New(opts...)
	case ProviderClaude:
		model, err = anthropic.New(
			anthropic.WithToken(options.APIKey),
			anthropic.WithModel(options.Model),
		)
	case ProviderOllama:
		baseURL := options.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model, err = ollama.New(
			ollama.WithServerURL(baseURL),
			ollama.WithModel(options.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}

	if options.DefaultConfidence <= 0 {
		options.DefaultConfidence = 0.9
	}
	return &LLMCollaborator{llm: model, options: options}, nil
}

// Model exposes the underlying model so other components, like the reply
// drafter, can share one connection.
func (c *LLMCollaborator) Model() llms.Model {
	return c.llm
}

// payload is the shape the model is asked to reply with. Confidence is a
// pointer so a missing score is distinguishable from zero.
type payload struct {
	Intent     string   `json:"intent"`
	Confidence *float64 `json:"confidence"`
	Sentiment  *struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"sentiment"`
	Urgency string `json:"urgency"`
}

func (c *LLMCollaborator) Classify(ctx context.Context, text string, snapshot *models.ConversationSnapshot) (Analysis, error) {
	prompt := buildPrompt(text, snapshot)

	callOptions := []llms.CallOption{
		llms.WithTemperature(c.options.Temperature),
	}
	if c.options.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(c.options.MaxTokens))
	}

	raw, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, callOptions...)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c.parse(raw)
}

func (c *LLMCollaborator) parse(raw string) (Analysis, error) {
	cleaned, repaired, err := RepairPayload(raw)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if repaired {
		log.Debug().Int("bytes", len(raw)).Msg("classification payload needed repair")
	}

	var p payload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	out := Analysis{Intent: models.ParseIntent(strings.TrimSpace(strings.ToLower(p.Intent)))}
	if p.Confidence != nil {
		out.Confidence = clamp01(*p.Confidence)
		out.ConfidenceSet = true
	} else {
		out.Confidence = c.options.DefaultConfidence
	}
	if p.Sentiment != nil {
		out.Sentiment = &models.Sentiment{
			Label: p.Sentiment.Label,
			Score: clampScore(p.Sentiment.Score),
		}
	}
	out.Urgency = p.Urgency
	return out, nil
}

func buildPrompt(text string, snapshot *models.ConversationSnapshot) string {
	var b strings.Builder
	b.WriteString("You are a customer-support triage classifier.\n")
	b.WriteString("Classify the customer message into exactly one intent from this list:\n")
	for _, in := range models.AllIntents() {
		b.WriteString("- ")
		b.WriteString(string(in))
		b.WriteString("\n")
	}
	b.WriteString("\nReply with JSON only, no prose, in this shape:\n")
	b.WriteString(`{"intent": "...", "confidence": 0.0, "sentiment": {"label": "positive|neutral|negative", "score": 0.0}, "urgency": "low|medium|high"}`)
	b.WriteString("\n\n")

	if snapshot != nil && len(snapshot.Messages) > 1 {
		b.WriteString("Recent conversation:\n")
		msgs := snapshot.Messages
		if len(msgs) > 6 {
			msgs = msgs[len(msgs)-6:]
		}
		for _, m := range msgs {
			fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Body)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Customer message:\n%s\n", text)
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampScore(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
