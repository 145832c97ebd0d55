// Package systemd drives systemd through systemctl, for hosts where the
// D-Bus API is not reachable.
package systemd

import (
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

type System struct{}

func (s *System) EnsureRunning(name string) error {
	if err := s.enable(name); err != nil {
		return err
	}
	return systemctl("restart", name)
}

func (s *System) EnsureStarted(name string) error {
	if err := s.enable(name); err != nil {
		return err
	}
	return systemctl("start", name)
}

func (s *System) ReloadService(name string) error {
	return systemctl("reload-or-restart", name)
}

func (s *System) enable(name string) error {
	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", name)
}

var command = exec.Command

func systemctl(args ...string) error {
	output, err := command("systemctl", args...).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "systemctl %s: %s", strings.Join(args, " "), strings.TrimSpace(string(output)))
	}
	return nil
}
