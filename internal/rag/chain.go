package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/anidex/anidex/internal/retrieval"
	"github.com/anidex/anidex/internal/vectorstore"
)

// Format selects the answer output shape.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

const answerSystem = `You answer questions about anime TV shows using only the provided context.

Guidelines:
- Use ONLY information from the provided context
- Map aliases and alternate titles to the same show when present
- If multiple shows match, mention all relevant ones
- If no data is available, clearly state what information is missing
- Be concise but informative
- Include relevant details like episode count, year, and ratings when available

Context Format:
Each anime entry includes: title, alternate titles, description, tags, episodes, year, and ratings.`

const answerSystemJSON = answerSystem + `

Respond with a single JSON object of the form
{"answer": "...", "shows": [{"title": "...", "year": ..., "episodes": ...}]}
and no other text.`

// Retriever is the document source the chain answers over.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*retrieval.Result, error)
}

// Answer is a generated response plus the context that produced it.
type Answer struct {
	QueryID      uuid.UUID
	Text         string
	Docs         []vectorstore.Scored
	FallbackUsed bool
}

// Chain wires retrieval into generation: retrieve documents, build a
// context block, ask the model.
type Chain struct {
	g         *genkit.Genkit
	model     ai.Model
	retriever Retriever
	logger    *slog.Logger
}

// NewChain creates an answer chain.
func NewChain(g *genkit.Genkit, model ai.Model, retriever Retriever, logger *slog.Logger) (*Chain, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit is required")
	}
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{g: g, model: model, retriever: retriever, logger: logger}, nil
}

// Answer retrieves context for the question and generates a response.
func (c *Chain) Answer(ctx context.Context, question string, format Format) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is required")
	}
	system, err := systemFor(format)
	if err != nil {
		return nil, err
	}

	result, err := c.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}
	logger := c.logger.With("query_id", result.QueryID)
	logger.Debug("context retrieved",
		"docs", len(result.Docs), "fallback_used", result.FallbackUsed)

	response, err := genkit.Generate(ctx, c.g,
		ai.WithModel(c.model),
		ai.WithSystem(system),
		ai.WithPrompt("Context:\n%s\n\nQuestion: %s", contextBlock(result.Docs), question),
	)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	return &Answer{
		QueryID:      result.QueryID,
		Text:         response.Text(),
		Docs:         result.Docs,
		FallbackUsed: result.FallbackUsed,
	}, nil
}

func systemFor(format Format) (string, error) {
	switch format {
	case FormatText, "":
		return answerSystem, nil
	case FormatJSON:
		return answerSystemJSON, nil
	default:
		return "", fmt.Errorf("format must be %q or %q, got %q", FormatText, FormatJSON, format)
	}
}

// contextBlock joins the retrieved document contents. Documents arrive
// relevance-ordered; order is preserved so the model sees the best
// match first.
func contextBlock(docs []vectorstore.Scored) string {
	if len(docs) == 0 {
		return "(no matching shows found)"
	}
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Document.Content
	}
	return strings.Join(parts, "\n\n---\n\n")
}
