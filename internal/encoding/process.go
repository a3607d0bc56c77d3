package encoding

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"pressing/internal/logging"
	"pressing/internal/services"
)

var commandContext = exec.CommandContext

// terminateGrace is how long a terminated process group may take to exit
// before its pipes are closed and the wait is abandoned.
const terminateGrace = 10 * time.Second

// SetProcessGroup starts cmd in a new process group and makes context
// cancellation deliver SIGTERM to the whole group.
func SetProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return err
	}
	cmd.WaitDelay = terminateGrace
}

// CommandError classifies a failed subprocess. stderr is the captured tail of
// the tool's error output.
func CommandError(ctx context.Context, tool string, err error, stderr string) error {
	if ctx.Err() != nil {
		return services.Wrap(services.ErrCancelled, tool, "run", "interrupted", ctx.Err())
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrToolUnavailable, tool, "start", "", err)
	}
	return services.Wrap(services.ErrExternalTool, tool, "run", lastLines(stderr, 5), err)
}

func lastLines(text string, n int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// TailBuffer keeps the last few kilobytes written to it.
type TailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

const tailLimit = 8 << 10

func (b *TailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - tailLimit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *TailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func toolName(binary string) string {
	return filepath.Base(binary)
}

func run(ctx context.Context, logger *slog.Logger, binary string, args ...string) error {
	_, err := output(ctx, logger, binary, args...)
	return err
}

func output(ctx context.Context, logger *slog.Logger, binary string, args ...string) (string, error) {
	cmd := commandContext(ctx, binary, args...) //nolint:gosec
	SetProcessGroup(cmd)
	var stdout bytes.Buffer
	var stderr TailBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("running tool",
		logging.String("tool", toolName(binary)),
		logging.Any("args", args),
	)
	if err := cmd.Run(); err != nil {
		return "", CommandError(ctx, toolName(binary), err, stderr.String())
	}
	return stdout.String(), nil
}

// runPipe streams the producer's stdout into the consumer's stdin.
func runPipe(ctx context.Context, logger *slog.Logger, producer, consumer []string) error {
	prod := commandContext(ctx, producer[0], producer[1:]...) //nolint:gosec
	cons := commandContext(ctx, consumer[0], consumer[1:]...) //nolint:gosec
	SetProcessGroup(prod)
	SetProcessGroup(cons)

	reader, writer, err := os.Pipe()
	if err != nil {
		return services.Wrap(services.ErrIO, "encoding", "pipe", "", err)
	}
	var prodErr, consErr TailBuffer
	prod.Stdout = writer
	prod.Stderr = &prodErr
	cons.Stdin = reader
	cons.Stderr = &consErr

	logger.Debug("running pipe",
		logging.String("producer", toolName(producer[0])),
		logging.String("consumer", toolName(consumer[0])),
	)
	if err := prod.Start(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return CommandError(ctx, toolName(producer[0]), err, "")
	}
	if err := cons.Start(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		_ = prod.Wait()
		return CommandError(ctx, toolName(consumer[0]), err, "")
	}
	// Only the children hold the pipe now, so either side exiting ends the other.
	_ = reader.Close()
	_ = writer.Close()

	perr := prod.Wait()
	cerr := cons.Wait()
	if perr != nil {
		return CommandError(ctx, toolName(producer[0]), perr, prodErr.String())
	}
	if cerr != nil {
		return CommandError(ctx, toolName(consumer[0]), cerr, consErr.String())
	}
	return nil
}
