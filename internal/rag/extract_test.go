package rag

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"

	"github.com/anidex/anidex/internal/testutil"
)

func TestExtractByPattern(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
		ok    bool
	}{
		{
			name:  "tell me about",
			query: "Tell me about Cowboy Bebop",
			want:  "cowboy bebop",
			ok:    true,
		},
		{
			name:  "tell me about the anime called",
			query: `tell me about the anime called "Steins;Gate"`,
			want:  "steins;gate",
			ok:    true,
		},
		{
			name:  "what is about",
			query: "What is Neon Genesis Evangelion about?",
			want:  "neon genesis evangelion",
			ok:    true,
		},
		{
			name:  "search for",
			query: "search for the anime Monster",
			want:  "monster",
			ok:    true,
		},
		{
			name:  "named",
			query: "a show named Lain.",
			want:  "lain",
			ok:    true,
		},
		{
			name:  "best episodes of",
			query: "best episodes of Cowboy Bebop",
			want:  "cowboy bebop",
			ok:    true,
		},
		{
			name:  "no pattern",
			query: "mecha anime recommendations",
			ok:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractByPattern(tt.query)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtractTitleModelFallback(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockModel("Serial Experiments Lain")
	model := mock.Register(g)

	e := NewExtractor(g, model, testutil.DiscardLogger())

	// No pattern matches, so the model answers.
	title := e.ExtractTitle(context.Background(), "that 90s show with the wired")
	assert.Equal(t, "Serial Experiments Lain", title)
	assert.Len(t, mock.Calls(), 1)

	// Pattern match short-circuits the model.
	title = e.ExtractTitle(context.Background(), "Tell me about Cowboy Bebop")
	assert.Equal(t, "cowboy bebop", title)
	assert.Len(t, mock.Calls(), 1, "pattern hit must not call the model")
}

func TestExtractTitleWithoutModel(t *testing.T) {
	e := NewExtractor(nil, nil, testutil.DiscardLogger())

	title := e.ExtractTitle(context.Background(), "mecha anime recommendations")
	assert.Equal(t, "mecha anime recommendations", title, "no model means the query passes through")
}
