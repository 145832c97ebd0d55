package system

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Exec runs commands on the host.
type Exec struct {
	Log *zap.Logger
}

// Run runs the command, killing it once timeout has passed.
// A zero timeout only honours ctx.
func (e Exec) Run(ctx context.Context, timeout time.Duration, name string, args ...string) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	command := strings.Join(append([]string{name}, args...), " ")
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if e.Log != nil {
		e.Log.Debug("command output", zap.String("command", command), zap.ByteString("output", output))
	}
	if err == nil {
		return nil
	}
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	if timedOut {
		err = context.DeadlineExceeded
	}
	return &ExternalCommandError{
		Command:  command,
		Err:      errors.Wrapf(err, "output: %s", strings.TrimSpace(string(output))),
		TimedOut: timedOut,
	}
}
