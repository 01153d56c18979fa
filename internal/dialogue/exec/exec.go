// Package exec implements the dialogue Generator by running an external
// command. The command receives a JSON request on stdin and must print the
// script (JSON envelope, JSON array, or "SPEAKER: line" text) on stdout.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/nadzzz/duomode/internal/command"
	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/dialogue"
)

// Generator shells out for each dialogue.
type Generator struct {
	cmd  *command.Command
	opts dialogue.Options
}

type request struct {
	Topic    string   `json:"topic"`
	System   string   `json:"system"`
	Speakers []string `json:"speakers"`
	MaxTurns int      `json:"max_turns,omitempty"`
}

// New parses the configured command line.
func New(cfg config.ExecConfig, opts dialogue.Options) (*Generator, error) {
	cmd, err := command.Parse(cfg.Command, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("dialogue exec: %w", err)
	}
	return &Generator{cmd: cmd, opts: opts}, nil
}

// Name returns the backend identifier.
func (g *Generator) Name() string { return "exec" }

// Generate runs the command once for topic.
func (g *Generator) Generate(ctx context.Context, topic string) ([]dialogue.Turn, error) {
	topic, err := dialogue.CheckTopic(topic)
	if err != nil {
		return nil, err
	}
	speakers := g.opts.Speakers
	if len(speakers) == 0 {
		speakers = dialogue.DefaultSpeakers
	}
	input, err := json.Marshal(request{
		Topic:    topic,
		System:   dialogue.SystemPrompt(g.opts),
		Speakers: speakers,
		MaxTurns: g.opts.MaxTurns,
	})
	if err != nil {
		return nil, err
	}

	out, err := g.cmd.Run(ctx, bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("dialogue exec: %w", err)
	}
	raw, err := dialogue.ParseScript(string(out))
	if err != nil {
		return nil, err
	}
	return dialogue.Normalize(raw, g.opts)
}

// Close is a no-op.
func (g *Generator) Close() error { return nil }
