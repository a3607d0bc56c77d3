// Package butler pushes output directories to itch.io channels with
// `butler push --json`, turning its event stream into log lines.
package butler

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"pressing/internal/config"
	"pressing/internal/encoding"
	"pressing/internal/logging"
	"pressing/internal/services"
)

var commandContext = exec.CommandContext

// Event is one decoded line of butler's JSON output.
type Event struct {
	Type     string
	Level    string
	Message  string
	Progress float64
}

// ParseEvent decodes a butler JSON line. ok is false for non-JSON output.
func ParseEvent(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" || !gjson.Valid(line) {
		return Event{}, false
	}
	doc := gjson.Parse(line)
	ev := Event{
		Type:     doc.Get("type").String(),
		Level:    doc.Get("level").String(),
		Message:  doc.Get("message").String(),
		Progress: doc.Get("progress").Float(),
	}
	if ev.Type == "" {
		return Event{}, false
	}
	return ev, true
}

// Publisher runs butler.
type Publisher struct {
	binary string
	args   []string
	logger *slog.Logger
}

// NewPublisher builds a Publisher from cfg.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{
		binary: cfg.Tools.Butler,
		args:   cfg.ButlerArgs(),
		logger: logging.NewComponentLogger(logger, "butler"),
	}
}

// Publish pushes dir to channel ("user/project:channel").
func (p *Publisher) Publish(ctx context.Context, dir, channel string) error {
	if !strings.Contains(channel, ":") || strings.HasPrefix(channel, ":") {
		return services.Wrap(services.ErrConfiguration, "butler", "push", "invalid channel "+channel, nil)
	}
	logger := logging.WithContext(ctx, p.logger).With(logging.String("channel", channel))

	args := append([]string{"push", "--json", dir, channel}, p.args...)
	cmd := commandContext(ctx, p.binary, args...) //nolint:gosec
	encoding.SetProcessGroup(cmd)
	var stderr encoding.TailBuffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return services.Wrap(services.ErrIO, "butler", "push", "stdout pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return encoding.CommandError(ctx, filepath.Base(p.binary), err, "")
	}

	lastError := ""
	reported := -1
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		ev, ok := ParseEvent(scanner.Text())
		if !ok {
			continue
		}
		switch ev.Type {
		case "log":
			logEvent(logger, ev)
		case "progress":
			if step := int(ev.Progress * 10); step > reported {
				reported = step
				logger.Debug("upload progress", logging.String("percent", fmt.Sprintf("%.0f%%", ev.Progress*100)))
			}
		case "error":
			lastError = ev.Message
			logger.Warn("butler reported an error", logging.String("message", ev.Message))
		}
	}

	if err := cmd.Wait(); err != nil {
		detail := lastError
		if detail == "" {
			detail = stderr.String()
		}
		return encoding.CommandError(ctx, filepath.Base(p.binary), err, detail)
	}
	logger.Info("push complete")
	return nil
}

func logEvent(logger *slog.Logger, ev Event) {
	switch ev.Level {
	case "error":
		logger.Error(ev.Message)
	case "warning", "warn":
		logger.Warn(ev.Message)
	case "debug":
		logger.Debug(ev.Message)
	default:
		logger.Info(ev.Message)
	}
}
