package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/errm/queuestrap/pkg/metrics"
	"github.com/errm/queuestrap/pkg/watch"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Converge now and again whenever the settings file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := o.v.GetString("config")
			if path == "" {
				return errors.New("watch requires --config")
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return o.watch(ctx, path)
		},
	}
	addConvergeFlags(cmd)
	return cmd
}

func (o *options) watch(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	s, err := o.settings()
	if err != nil {
		return err
	}
	m := metrics.New()
	group := &watch.Group{
		MinWait: s.ConsulTemplate.MinWait,
		MaxWait: s.ConsulTemplate.MaxWait,
		Log:     o.log,
		Fn: func(ctx context.Context, destination string) error {
			if err := o.v.ReadInConfig(); err != nil {
				return errors.Wrapf(err, "unable to read %s", destination)
			}
			_, err := o.converge(ctx, m)
			return err
		},
	}
	defer group.Stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "unable to create watcher")
	}
	defer watcher.Close()
	// Editors and config management replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "unable to watch %s", filepath.Dir(path))
	}

	group.Trigger(ctx, path)
	o.log.Info("watching settings", zap.String("path", path))
	for {
		select {
		case <-ctx.Done():
			o.log.Info("shutdown signal received")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			o.log.Debug("settings changed", zap.Stringer("event", event), zap.Stringer("state", group.State(path)))
			group.Trigger(ctx, path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			o.log.Warn("watch error", zap.Error(err))
		}
	}
}
