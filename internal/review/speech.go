package review

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultSpeechText is spoken when a request carries no text.
const DefaultSpeechText = "Hello from Azure TTS!"

// Synthesizer turns text into an audio file and returns its URL path.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// CommandSynthesizer runs an external helper with the text as its last
// argument. The helper writes AudioURL's file into the output directory.
type CommandSynthesizer struct {
	Command  []string
	AudioURL string
	Timeout  time.Duration
}

// NewCommandSynthesizer builds a synthesizer serving /output/<outputFile>.
func NewCommandSynthesizer(command []string, outputFile string, timeout time.Duration) *CommandSynthesizer {
	return &CommandSynthesizer{
		Command:  command,
		AudioURL: "/output/" + outputFile,
		Timeout:  timeout,
	}
}

func (c *CommandSynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	if len(c.Command) == 0 {
		return "", eris.New("speech: no helper command configured")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, c.Command[1:]...), text)
	cmd := exec.CommandContext(ctx, c.Command[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", eris.Wrapf(err, "speech: %s failed: %s", c.Command[0], msg)
		}
		return "", eris.Wrapf(err, "speech: %s failed", c.Command[0])
	}
	zap.L().Info("speech: synthesized",
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return c.AudioURL, nil
}
