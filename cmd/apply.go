package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/dbus"
	"github.com/errm/queuestrap/pkg/artifact"
	"github.com/errm/queuestrap/pkg/backoff"
	"github.com/errm/queuestrap/pkg/consul"
	"github.com/errm/queuestrap/pkg/file"
	"github.com/errm/queuestrap/pkg/metrics"
	"github.com/errm/queuestrap/pkg/render"
	"github.com/errm/queuestrap/pkg/settings"
	"github.com/errm/queuestrap/pkg/system"
	"github.com/errm/queuestrap/pkg/systemd"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var retryBackoff = backoff.Backoff{Seq: []int{1, 2, 4, 8}}

func newApplyCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Install the artifacts and act on what changed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			_, err := o.converge(ctx, metrics.New())
			return err
		},
	}
	addConvergeFlags(cmd)
	return cmd
}

func addConvergeFlags(cmd *cobra.Command) {
	cmd.Flags().Int("attempts", 5, "How many times a failing service command is tried.")
	cmd.Flags().String("metrics-file", "", "Write converge metrics to this node_exporter textfile.")
	cmd.Flags().Bool("register", false, "Register the services with the Consul agent API as well as through its configuration directory.")
}

// converge renders and installs every artifact, recording the run in m.
func (o *options) converge(ctx context.Context, m *metrics.Collector) (system.Result, error) {
	start := time.Now()
	result, err := o.configure(ctx)
	m.Observe(result, time.Since(start), err)
	if path := o.v.GetString("metrics-file"); path != "" {
		if werr := m.Write(path); werr != nil {
			o.log.Warn("unable to write metrics", zap.Error(werr))
		}
	}
	if err != nil {
		o.log.Error("converge failed", zap.Error(err))
		return result, err
	}
	o.log.Info("converged",
		zap.Int("changed", len(result.Changed)),
		zap.Int("notified", len(result.Notified)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (o *options) configure(ctx context.Context) (system.Result, error) {
	s, err := o.settings()
	if err != nil {
		return system.Result{}, err
	}
	artifacts, err := artifact.Build(s)
	if err != nil {
		return system.Result{}, err
	}
	agent, err := consul.New(s.Consul.Address)
	if err != nil {
		return system.Result{}, err
	}
	sys := o.system(s, agent)
	result, err := sys.Configure(ctx, artifacts, artifact.Rules(s))
	if err != nil {
		return result, err
	}
	if o.v.GetBool("register") {
		if err := agent.Register(render.Services(s)); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (o *options) system(s settings.Settings, agent *consul.Agent) system.System {
	runner := system.Exec{Log: o.log}
	sys := system.System{
		Filesystem:     file.Atomic{Log: o.log},
		Init:           o.initSystem(),
		Consul:         agent,
		Runner:         runner,
		Service:        s.RabbitMQ.ServiceName,
		Backup:         !s.ConsulTemplate.DisableBackup,
		Backoff:        retryBackoff,
		Attempts:       o.v.GetInt("attempts"),
		CommandTimeout: s.ConsulTemplate.CommandTimeout,
		Log:            o.log,
	}
	if !s.Firewall.DisableRules {
		sys.Firewall = system.UFW{Runner: runner, Timeout: s.ConsulTemplate.CommandTimeout}
	}
	return sys
}

func (o *options) initSystem() system.Init {
	conn, err := dbus.New()
	if err != nil {
		o.log.Warn("systemd D-Bus API not reachable, falling back to systemctl", zap.Error(err))
		return &systemd.System{}
	}
	return &system.Systemd{Conn: conn}
}
