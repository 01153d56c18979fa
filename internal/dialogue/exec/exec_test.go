package exec

import (
	"context"
	osexec "os/exec"
	"testing"
	"time"

	"github.com/nadzzz/duomode/internal/config"
	"github.com/nadzzz/duomode/internal/dialogue"
)

func TestGenerateRunsCommand(t *testing.T) {
	if _, err := osexec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	cmd := `sh -c "cat >/dev/null; echo 'JOHN: What is rain?'; echo 'CARTOON_DAD: Clouds crying happy tears!'"`
	g, err := New(config.ExecConfig{Command: cmd, Timeout: 5 * time.Second}, dialogue.Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	turns, err := g.Generate(context.Background(), "rain")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(turns) != 2 || turns[0].Speaker != "JOHN" {
		t.Fatalf("unexpected turns %+v", turns)
	}
}

func TestNewRejectsEmptyCommand(t *testing.T) {
	if _, err := New(config.ExecConfig{}, dialogue.Options{}); err == nil {
		t.Fatal("expected error for empty command")
	}
}
