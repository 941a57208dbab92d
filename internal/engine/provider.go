package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Request is one model call: a system instruction plus the conversation
// messages ending with the new user message.
type Request struct {
	System   string
	Messages []*ai.Message
}

// Provider generates a reply for a request. When onChunk is non-nil it is
// called for each streamed chunk; returning an error from it aborts the
// stream. The full reply text is returned either way.
type Provider interface {
	StreamReply(ctx context.Context, req Request, onChunk func(chunk string) error) (string, error)
}

// GenkitProvider generates replies through a Genkit model.
type GenkitProvider struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
}

// NewGenkitProvider creates a provider bound to a provider-qualified model
// name, e.g. "googleai/gemini-2.5-flash".
func NewGenkitProvider(g *genkit.Genkit, modelName string, temperature float32) (*GenkitProvider, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	return &GenkitProvider{g: g, modelName: modelName, temperature: temperature}, nil
}

// StreamReply implements Provider.
func (p *GenkitProvider) StreamReply(ctx context.Context, req Request, onChunk func(string) error) (string, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(p.modelName),
		ai.WithSystem(req.System),
		ai.WithMessages(req.Messages...),
		ai.WithConfig(map[string]any{"temperature": p.temperature}),
	}
	if onChunk != nil {
		opts = append(opts, ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			if text := chunk.Text(); text != "" {
				return onChunk(text)
			}
			return nil
		}))
	}

	resp, err := genkit.Generate(ctx, p.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generating reply: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
