package hooks

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/soyeahso/actionloop/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultCommandTimeout bounds a hook command with no configured timeout.
const DefaultCommandTimeout = 10 * time.Second

// CommandHandler returns a handler that runs command through "sh -c" with the
// event payload as JSON on stdin. A non-zero exit or a timeout is an error.
func CommandHandler(command string, timeout time.Duration) Handler {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return func(ctx context.Context, p Payload) error {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdin = bytes.NewReader(body)
		cmd.Env = append(cmd.Environ(), "ACTIONLOOP_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		cmd.WaitDelay = time.Second

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("hook %q: %w", command, ctx.Err())
			}
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("hook %q: %w: %s", command, err, msg)
			}
			return fmt.Errorf("hook %q: %w", command, err)
		}
		return nil
	}
}

// RegisterCommands wires the configured shell hooks into m. It returns the
// number of handlers registered.
func RegisterCommands(m *Manager, cfg config.HooksConfig) int {
	n := 0
	register := func(event string, entries []config.HookEntry) {
		for i, e := range entries {
			if strings.TrimSpace(e.Command) == "" {
				continue
			}
			timeout := time.Duration(e.Timeout) * time.Millisecond
			m.On(event, fmt.Sprintf("command:%s:%d", event, i), CommandHandler(e.Command, timeout))
			n++
		}
	}
	register(EventRunStart, cfg.RunStart)
	register(EventStepComplete, cfg.StepComplete)
	register(EventToolError, cfg.ToolError)
	register(EventRunEnd, cfg.RunEnd)
	return n
}
