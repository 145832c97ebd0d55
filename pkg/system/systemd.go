package system

import (
	"strings"

	"github.com/coreos/go-systemd/dbus"
)

type dbusConn interface {
	Reload() error
	EnableUnitFiles([]string, bool, bool) (bool, []dbus.EnableUnitFileChange, error)
	RestartUnit(string, string, chan<- string) (int, error)
	StartUnit(string, string, chan<- string) (int, error)
	ReloadOrRestartUnit(string, string, chan<- string) (int, error)
}

// Systemd allows you to interact with the systemd init system.
type Systemd struct {
	Conn dbusConn
}

// EnsureRunning makes sure that the service is running with the latest config.
func (s *Systemd) EnsureRunning(name string) error {
	if err := s.enable(name); err != nil {
		return err
	}
	_, err := s.Conn.RestartUnit(unit(name), "replace", nil)
	return err
}

// EnsureStarted makes sure that the service is enabled and running,
// without restarting it.
func (s *Systemd) EnsureStarted(name string) error {
	if err := s.enable(name); err != nil {
		return err
	}
	_, err := s.Conn.StartUnit(unit(name), "replace", nil)
	return err
}

// ReloadService asks the service to reload its config, restarting it when
// it cannot.
func (s *Systemd) ReloadService(name string) error {
	_, err := s.Conn.ReloadOrRestartUnit(unit(name), "replace", nil)
	return err
}

func (s *Systemd) enable(name string) error {
	if err := s.Conn.Reload(); err != nil {
		return err
	}
	_, _, err := s.Conn.EnableUnitFiles([]string{unit(name)}, false, true)
	return err
}

func unit(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}
