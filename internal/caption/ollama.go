package caption

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultOllamaModel is the local model used when none is configured.
const DefaultOllamaModel = "qwen3:latest"

// DefaultTimeout bounds a single generation.
const DefaultTimeout = 5 * time.Minute

// OllamaGenerator runs the ollama CLI once per caption, writing the prompt
// to stdin and reading the caption from stdout.
type OllamaGenerator struct {
	// Command is the executable, "ollama" when empty.
	Command string
	// Args replaces the default ["run", Model] argument list when set.
	Args    []string
	Model   string
	Timeout time.Duration
	Website string
}

func (g *OllamaGenerator) command() (string, []string) {
	name := g.Command
	if name == "" {
		name = "ollama"
	}
	if len(g.Args) > 0 {
		return name, g.Args
	}
	model := g.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	return name, []string{"run", model}
}

// Generate implements Generator.
func (g *OllamaGenerator) Generate(ctx context.Context, req Request) (string, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name, args := g.command()
	prompt := Prompt(req, g.Website)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	log.Debug().
		Str("productId", req.ItemID).
		Str("command", name).
		Int("promptLength", len(prompt)).
		Msg("Starting caption generation")

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, ctx.Err())
		} else if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", &GenerationError{ItemID: req.ItemID, Backend: "ollama", Err: err}
	}

	log.Debug().
		Str("productId", req.ItemID).
		Int("outputLength", stdout.Len()).
		Dur("duration", time.Since(start)).
		Msg("Caption generation finished")

	return finish(req, "ollama", stdout.String())
}
