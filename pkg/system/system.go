package system

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/errm/queuestrap/pkg/artifact"
	"github.com/errm/queuestrap/pkg/backoff"
	"github.com/errm/queuestrap/pkg/file"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Filesystem interface {
	Sync(io.Reader, string, file.Meta) (bool, error)
}

type Init interface {
	EnsureRunning(string) error
	EnsureStarted(string) error
	ReloadService(string) error
}

type Firewall interface {
	Allow(context.Context, artifact.FirewallRule) error
}

type Consul interface {
	Reload() error
}

type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) error
}

// System installs artifacts on the node and acts on what changed.
type System struct {
	Filesystem Filesystem
	Init       Init
	Consul     Consul
	Runner     Runner
	// Firewall is optional, rules are not applied when it is nil.
	Firewall Firewall

	// Service is the broker unit, started when nothing restarted it.
	Service string
	// Backup keeps the previous content of replaced files.
	Backup bool

	Backoff        backoff.Backoff
	Attempts       int
	CommandTimeout time.Duration
	Log            *zap.Logger
}

// Result summarizes a converge run.
type Result struct {
	Changed  []string
	Notified []artifact.Notification
}

// Configure writes every artifact whose content or metadata differs, opens
// the firewall rules and then runs each owed notification once.
func (s System) Configure(ctx context.Context, artifacts []artifact.Artifact, rules []artifact.FirewallRule) (Result, error) {
	log := s.logger()
	var (
		result  Result
		changed []artifact.Artifact
	)
	for _, a := range artifacts {
		meta := file.Meta{Mode: a.Mode, Owner: a.Owner, Group: a.Group, Backup: s.Backup}
		updated, err := s.Filesystem.Sync(strings.NewReader(a.Content), a.Path, meta)
		if err != nil {
			return result, errors.Wrapf(err, "unable to install %s", a.Name)
		}
		if updated {
			log.Info("artifact changed", zap.String("artifact", a.Name), zap.String("path", a.Path))
			changed = append(changed, a)
			result.Changed = append(result.Changed, a.Path)
		}
	}

	if s.Firewall != nil {
		for _, rule := range rules {
			rule := rule
			err := s.retry(ctx, "ufw "+strings.Join(rule.Args(), " "), func() error {
				return s.Firewall.Allow(ctx, rule)
			})
			if err != nil {
				return result, err
			}
		}
	}

	started := false
	for _, n := range artifact.Pending(changed) {
		if n.Action == artifact.ActionRun && !started {
			if err := s.ensureStarted(ctx); err != nil {
				return result, err
			}
			started = true
		}
		if err := s.retry(ctx, n.String(), func() error { return s.notify(ctx, n) }); err != nil {
			return result, err
		}
		log.Info("notified", zap.Stringer("notification", n))
		result.Notified = append(result.Notified, n)
		if n.Action == artifact.ActionRestart && n.Target == s.Service {
			started = true
		}
	}
	if !started {
		if err := s.ensureStarted(ctx); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s System) ensureStarted(ctx context.Context) error {
	return s.retry(ctx, "start "+s.Service, func() error {
		return s.Init.EnsureStarted(s.Service)
	})
}

func (s System) notify(ctx context.Context, n artifact.Notification) error {
	switch n.Action {
	case artifact.ActionRestart:
		return s.Init.EnsureRunning(n.Target)
	case artifact.ActionReload:
		return s.Init.ReloadService(n.Target)
	case artifact.ActionReloadConsul:
		return s.Consul.Reload()
	case artifact.ActionRun:
		return s.Runner.Run(ctx, s.CommandTimeout, "sh", n.Target)
	}
	return errors.Errorf("unknown notification %s", n)
}

// retry runs fn with backoff. A failure that outlasts every attempt is
// returned as an *ExternalCommandError.
func (s System) retry(ctx context.Context, command string, fn func() error) error {
	attempts := s.Attempts
	if attempts < 1 {
		attempts = 1
	}
	n := 0
	err := s.Backoff.Retry(ctx, attempts, func() error {
		n++
		err := fn()
		if err != nil {
			s.logger().Warn("command failed", zap.String("command", command), zap.Int("attempt", n), zap.Error(err))
		}
		return err
	})
	if err == nil {
		return nil
	}
	var cmdErr *ExternalCommandError
	if errors.As(err, &cmdErr) {
		return cmdErr
	}
	return &ExternalCommandError{
		Command:  command,
		Err:      err,
		TimedOut: errors.Is(err, context.DeadlineExceeded),
	}
}

func (s System) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
