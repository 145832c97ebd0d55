package system

import (
	"context"
	"time"

	"github.com/errm/queuestrap/pkg/artifact"
)

// UFW applies firewall rules with ufw. Adding an existing rule is a no-op.
type UFW struct {
	Runner  Runner
	Timeout time.Duration
}

func (u UFW) Allow(ctx context.Context, rule artifact.FirewallRule) error {
	return u.Runner.Run(ctx, u.Timeout, "ufw", rule.Args()...)
}
