// Package dialogue defines the Generator capability that turns a topic into
// a speaker-tagged tutoring script, plus the normalization every backend's
// output goes through.
package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nadzzz/duomode/internal/voice"
)

var (
	// ErrEmptyTopic is returned when Generate is called with a blank topic.
	ErrEmptyTopic = errors.New("empty topic")

	// ErrEmptyDialogue is returned when a backend produced no usable turns.
	ErrEmptyDialogue = errors.New("dialogue has no turns")
)

// Turn is one speaker-attributed line of the script.
type Turn struct {
	Speaker string `json:"speaker" jsonschema:"description=Speaker label, one of the allowed speakers"`
	Line    string `json:"line" jsonschema:"description=What the speaker says, one to three short sentences"`
}

// Script is the structured-output envelope requested from LLM backends.
type Script struct {
	Turns []Turn `json:"turns" jsonschema:"description=Dialogue turns in speaking order"`
}

// Generator produces an ordered dialogue for a topic.
type Generator interface {
	// Name returns the backend identifier.
	Name() string

	// Generate returns at least one turn or an error.
	Generate(ctx context.Context, topic string) ([]Turn, error)

	// Close releases backend resources.
	Close() error
}

// Options bound the generated script.
type Options struct {
	Speakers     []string // allowed speaker labels, in speaking order
	MaxTurns     int
	MaxLineChars int
}

// DefaultSpeakers is used when Options.Speakers is empty.
var DefaultSpeakers = []string{voice.SpeakerJohn, voice.SpeakerCartoonDad}

func (o Options) speakers() []string {
	if len(o.Speakers) == 0 {
		return DefaultSpeakers
	}
	return o.Speakers
}

// CheckTopic trims topic and rejects an empty one.
func CheckTopic(topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", ErrEmptyTopic
	}
	return topic, nil
}

// Normalize cleans backend output: labels are canonicalized, lines trimmed
// and capped, and the list is capped at MaxTurns. Turns with an empty
// speaker or line are rejected outright rather than dropped.
func Normalize(turns []Turn, opts Options) ([]Turn, error) {
	if len(turns) == 0 {
		return nil, ErrEmptyDialogue
	}
	if opts.MaxTurns > 0 && len(turns) > opts.MaxTurns {
		turns = turns[:opts.MaxTurns]
	}

	out := make([]Turn, 0, len(turns))
	for i, t := range turns {
		speaker := voice.NormalizeLabel(t.Speaker)
		line := strings.Join(strings.Fields(t.Line), " ")
		if speaker == "" {
			return nil, fmt.Errorf("turn %d: missing speaker", i+1)
		}
		if line == "" {
			return nil, fmt.Errorf("turn %d (%s): empty line", i+1, speaker)
		}
		out = append(out, Turn{Speaker: speaker, Line: capLine(line, opts.MaxLineChars)})
	}
	return out, nil
}

// capLine shortens line to at most max runes, preferring to cut after the
// last sentence terminator that fits.
func capLine(line string, max int) string {
	if max <= 0 || utf8.RuneCountInString(line) <= max {
		return line
	}
	runes := []rune(line)[:max]
	for i := len(runes) - 1; i > 0; i-- {
		switch runes[i] {
		case '.', '!', '?':
			return string(runes[:i+1])
		}
	}
	cut := strings.TrimRightFunc(string(runes), func(r rune) bool { return !unicode.IsSpace(r) })
	if cut = strings.TrimSpace(cut); cut == "" {
		cut = string(runes)
	}
	return cut
}

// SystemPrompt is the tutor persona plus the output contract.
func SystemPrompt(opts Options) string {
	speakers := opts.speakers()
	var sb strings.Builder
	sb.WriteString("You are a friendly AI tutor who explains topics clearly and concisely for beginners.\n")
	sb.WriteString("Write the explanation as a short spoken dialogue between ")
	sb.WriteString(strings.Join(speakers, " and "))
	sb.WriteString(".\n")
	fmt.Fprintf(&sb, "%s asks curious questions and %s answers with playful, practical intuition.\n",
		speakers[0], speakers[len(speakers)-1])
	sb.WriteString("Speakers alternate. Use only these speaker labels, exactly as written: ")
	sb.WriteString(strings.Join(speakers, ", "))
	sb.WriteString(".\n")
	if opts.MaxTurns > 0 {
		fmt.Fprintf(&sb, "Write at most %d turns.\n", opts.MaxTurns)
	}
	if opts.MaxLineChars > 0 {
		fmt.Fprintf(&sb, "Keep every line under %d characters.\n", opts.MaxLineChars)
	}
	sb.WriteString("Keep the whole dialogue under 120 words. No stage directions, no markdown.\n")
	sb.WriteString("\nReturn JSON: {\"turns\": [{\"speaker\": \"LABEL\", \"line\": \"...\"}]}\n")
	return sb.String()
}

// UserPrompt frames the recognized topic.
func UserPrompt(topic string) string {
	return fmt.Sprintf("Topic: %s", topic)
}

var speakerLineRe = regexp.MustCompile(`^\s*\**\s*([A-Za-z][A-Za-z _]*?)\s*\**\s*:\s*(.+)$`)

// ParseScript extracts turns from LLM output. It accepts the JSON envelope,
// a bare JSON array of turns, or plain "SPEAKER: line" text.
func ParseScript(content string) ([]Turn, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var script Script
	if err := json.Unmarshal([]byte(content), &script); err == nil && len(script.Turns) > 0 {
		return script.Turns, nil
	}

	var turns []Turn
	if err := json.Unmarshal([]byte(content), &turns); err == nil && len(turns) > 0 {
		return turns, nil
	}

	for _, line := range strings.Split(content, "\n") {
		m := speakerLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		turns = append(turns, Turn{Speaker: m[1], Line: m[2]})
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("%w: could not parse output: %.200s", ErrEmptyDialogue, content)
	}
	return turns, nil
}
