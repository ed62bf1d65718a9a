// Package render builds and runs ffmpeg command lines for the assembly
// stages: narration/music mixing, clip concatenation, Ken Burns motion,
// subtitle burn-in and the final mux. Command construction is deterministic
// and separated from execution so the filter graphs can be tested without
// an encoder present.
package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dreamreel/dreamreel/internal/utils"
)

// execCommand allows us to mock exec.CommandContext in tests
var execCommand = exec.CommandContext

// EncoderError is a nonzero ffmpeg exit. Encoder failures reflect malformed
// input, not transient conditions: callers treat them as fatal to the
// rendering stage and never retry.
type EncoderError struct {
	Args   []string
	Stderr string
}

func (e *EncoderError) Error() string {
	return fmt.Sprintf("ffmpeg failed (args: %s): %s", strings.Join(e.Args, " "), e.Stderr)
}

// Run executes ffmpeg with the given arguments, capturing stderr for
// diagnosis.
func Run(ctx context.Context, args []string) error {
	utils.LogDebug("ffmpeg %s", strings.Join(args, " "))

	cmd := execCommand(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &EncoderError{Args: args, Stderr: tail(stderr.String(), 2000)}
	}
	return nil
}

// Probe returns a stream property via ffprobe (e.g. duration in seconds).
func Probe(ctx context.Context, path string, entry string) (string, error) {
	cmd := execCommand(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", entry,
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffprobe failed for %s: %s", path, tail(stderr.String(), 500))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
