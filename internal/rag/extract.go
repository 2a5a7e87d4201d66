// Package rag holds the language-model side of the pipeline: pulling a
// show title out of a free-form question, and answering questions over
// retrieved context.
package rag

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// titlePatterns cover the common question phrasings. Checked in order;
// first match wins. Matching is cheap and costs no model call, so it
// always runs before the model fallback.
var titlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)tell me about (?:the )?(?:anime )?(?:called )?['"]?(.+?)['"]?\.?$`),
	regexp.MustCompile(`(?i)what (?:is|are) (?:the )?(?:anime )?['"]?(.+?)['"]? (?:about|like)`),
	regexp.MustCompile(`(?i)(?:search for|find) (?:the )?(?:anime )?['"]?(.+?)['"]?\.?$`),
	regexp.MustCompile(`(?i)(?:anime )?(?:called|named) ['"]?(.+?)['"]?\.?$`),
	regexp.MustCompile(`(?i)(?:best|worst|top) (?:episodes?|seasons?) (?:of|from) (?:the )?(?:anime )?['"]?(.+?)['"]?\.?$`),
}

var trailingPunct = regexp.MustCompile(`[.!?]+$`)

const titleExtractionSystem = `You are an anime title extraction assistant.

Your task is to identify and extract the anime title from a user's natural language query.

Guidelines:
- Extract ONLY the anime title, nothing else
- Remove question words and phrases (e.g., "tell me about", "what is", etc.)
- Remove punctuation at the end
- Preserve the original capitalization and special characters in the title
- If multiple anime are mentioned, extract only the primary one
- If no anime title is found, return the original query unchanged

Return ONLY the extracted title, with no explanation or additional text.`

// Extractor resolves show titles from natural language queries using
// regex patterns first and a model fallback second. Extraction never
// fails: when everything else comes up empty the query itself is the
// answer.
type Extractor struct {
	g      *genkit.Genkit
	model  ai.Model
	logger *slog.Logger
}

// NewExtractor creates a title extractor. model may be nil, in which
// case only the pattern pass runs.
func NewExtractor(g *genkit.Genkit, model ai.Model, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{g: g, model: model, logger: logger}
}

// ExtractTitle pulls a show title out of the query.
func (e *Extractor) ExtractTitle(ctx context.Context, query string) string {
	if title, ok := extractByPattern(query); ok {
		e.logger.Debug("title extracted by pattern", "title", title)
		return title
	}
	return e.extractByModel(ctx, query)
}

// extractByPattern runs the regex pass over the lowercased query.
func extractByPattern(query string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(query))
	for _, pattern := range titlePatterns {
		m := pattern.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[1])
		title = trailingPunct.ReplaceAllString(title, "")
		if title != "" {
			return title, true
		}
	}
	return "", false
}

// extractByModel asks the model for the title. Any failure falls back
// to the original query.
func (e *Extractor) extractByModel(ctx context.Context, query string) string {
	if e.model == nil || e.g == nil {
		return query
	}

	response, err := genkit.Generate(ctx, e.g,
		ai.WithModel(e.model),
		ai.WithSystem(titleExtractionSystem),
		ai.WithPrompt("Extract the anime title from this query:\n\n%s", query),
	)
	if err != nil {
		e.logger.Warn("model title extraction failed, using query as-is", "error", err)
		return query
	}

	title := strings.TrimSpace(response.Text())
	if title == "" {
		return query
	}
	e.logger.Debug("title extracted by model", "title", title)
	return title
}
