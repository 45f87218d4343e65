package scorer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/sashabaranov/go-openai"
)

// LLMPolicy asks an OpenAI-compatible endpoint to rate an item 0-10 and
// maps the answer to [0,1]. Any failure falls back to the wrapped policy,
// an LLM outage never degrades a run below the heuristic baseline.
type LLMPolicy struct {
	client   *openai.Client
	model    string
	temp     float64
	timeout  time.Duration
	fallback Policy
}

// LLMParams configures an LLMPolicy
type LLMParams struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	Fallback    Policy
}

// NewLLMPolicy creates an LLM-backed scoring policy
func NewLLMPolicy(p LLMParams) *LLMPolicy {
	clientConfig := openai.DefaultConfig(p.APIKey)
	if p.Endpoint != "" {
		clientConfig.BaseURL = p.Endpoint
	}
	return &LLMPolicy{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    p.Model,
		temp:     p.Temperature,
		timeout:  p.Timeout,
		fallback: p.Fallback,
	}
}

const systemPrompt = `You rate news articles for general importance.
Reply with a single number from 0 to 10 and nothing else, where 0 is noise
and 10 is a major story.`

// Score rates the item via the LLM, falling back to the heuristic on any
// error or unparsable response. The request inherits the run context, so
// run cancellation aborts it before the per-request timeout.
func (p *LLMPolicy) Score(ctx context.Context, s Signals) float64 {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Title: %s\n\nSummary: %s", s.Title, s.Summary)
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: float32(p.temp),
		MaxTokens:   8,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		lgr.Printf("[WARN] llm scoring failed, using heuristic: %v", err)
		return p.fallback.Score(ctx, s)
	}
	if len(resp.Choices) == 0 {
		lgr.Printf("[WARN] llm returned no choices, using heuristic")
		return p.fallback.Score(ctx, s)
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		lgr.Printf("[WARN] empty llm rating, using heuristic")
		return p.fallback.Score(ctx, s)
	}
	rating, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		lgr.Printf("[WARN] unparsable llm rating %q, using heuristic", raw)
		return p.fallback.Score(ctx, s)
	}

	return clamp(rating / 10)
}
