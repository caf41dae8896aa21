package assistant

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/bishleshok-ai/bishleshok/internal/cost"
	"github.com/bishleshok-ai/bishleshok/pkg/anthropic"
	"github.com/bishleshok-ai/bishleshok/pkg/gemini"
)

// Answerer produces a Markdown answer from fixed instructions and a
// per-question prompt.
type Answerer interface {
	Answer(ctx context.Context, instructions, prompt string) (string, error)
}

// GeminiAnswerer asks the generative content endpoint.
type GeminiAnswerer struct {
	client gemini.Client
	model  string
}

// NewGeminiAnswerer creates a GeminiAnswerer. An empty model uses the
// default content model.
func NewGeminiAnswerer(client gemini.Client, model string) *GeminiAnswerer {
	if model == "" {
		model = gemini.DefaultContentModel
	}
	return &GeminiAnswerer{client: client, model: model}
}

// Answer sends instructions and prompt as one text part.
func (g *GeminiAnswerer) Answer(ctx context.Context, instructions, prompt string) (string, error) {
	req := &gemini.Request{
		Contents: []gemini.Content{{Parts: []gemini.Part{gemini.TextPart(instructions + "\n\n" + prompt)}}},
	}
	resp, err := g.client.GenerateContent(ctx, g.model, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.FirstText())
	if text == "" {
		return "", eris.New("No answer returned from Gemini.")
	}
	return text, nil
}

// ClaudeAnswerer asks Anthropic's Messages API. Instructions go into a
// cached system block.
type ClaudeAnswerer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	costs     *cost.Calculator
}

// NewClaudeAnswerer creates a ClaudeAnswerer. costs may be nil.
func NewClaudeAnswerer(client anthropic.Client, model string, maxTokens int64, costs *cost.Calculator) *ClaudeAnswerer {
	if model == "" {
		model = anthropic.DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &ClaudeAnswerer{client: client, model: model, maxTokens: maxTokens, costs: costs}
}

// Answer implements Answerer.
func (c *ClaudeAnswerer) Answer(ctx context.Context, instructions, prompt string) (string, error) {
	resp, err := c.client.Complete(ctx, anthropic.Prompt{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      instructions,
		CacheSystem: true,
		User:        prompt,
	})
	if err != nil {
		return "", err
	}
	if c.costs != nil {
		c.costs.Log("anthropic", c.model, "ask", cost.Usage{
			Input:      int(resp.Usage.Input),
			Output:     int(resp.Usage.Output),
			CacheWrite: int(resp.Usage.CacheWrite),
			CacheRead:  int(resp.Usage.CacheRead),
		})
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", eris.New("No answer returned from Claude.")
	}
	return text, nil
}
