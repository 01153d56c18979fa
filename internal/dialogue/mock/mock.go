// Package mock provides a deterministic dialogue Generator for local runs
// and tests without an LLM.
package mock

import (
	"context"
	"fmt"

	"github.com/nadzzz/duomode/internal/dialogue"
)

// Generator returns a fixed four-turn script about the topic.
type Generator struct {
	opts dialogue.Options
}

// New creates a mock generator.
func New(opts dialogue.Options) *Generator {
	return &Generator{opts: opts}
}

// Name returns the backend identifier.
func (g *Generator) Name() string { return "mock" }

// Generate builds the script from templates, alternating the first two speakers.
func (g *Generator) Generate(_ context.Context, topic string) ([]dialogue.Turn, error) {
	topic, err := dialogue.CheckTopic(topic)
	if err != nil {
		return nil, err
	}
	speakers := g.opts.Speakers
	if len(speakers) == 0 {
		speakers = dialogue.DefaultSpeakers
	}
	a, b := speakers[0], speakers[len(speakers)-1]

	raw := []dialogue.Turn{
		{Speaker: a, Line: fmt.Sprintf("Let's talk about %s.", topic)},
		{Speaker: b, Line: fmt.Sprintf("Ooh, %s! Picture it like a recipe with a few simple steps.", topic)},
		{Speaker: a, Line: "So what is the first step?"},
		{Speaker: b, Line: "Start with the big idea, then add details one at a time."},
	}
	return dialogue.Normalize(raw, g.opts)
}

// Close is a no-op.
func (g *Generator) Close() error { return nil }
