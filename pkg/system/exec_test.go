package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/errm/queuestrap/pkg/artifact"
)

func TestExecRun(t *testing.T) {
	testCases := []struct {
		desc     string
		timeout  time.Duration
		name     string
		args     []string
		fails    bool
		timedOut bool
	}{
		{desc: "success", name: "true"},
		{desc: "failure", name: "sh", args: []string{"-c", "echo broken >&2; exit 3"}, fails: true},
		{desc: "timeout", timeout: 50 * time.Millisecond, name: "sleep", args: []string{"5"}, fails: true, timedOut: true},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			err := Exec{}.Run(context.Background(), tC.timeout, tC.name, tC.args...)
			if !tC.fails {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			var cmdErr *ExternalCommandError
			if !errors.As(err, &cmdErr) {
				t.Fatalf("Expected an ExternalCommandError, got %v", err)
			}
			if cmdErr.TimedOut != tC.timedOut {
				t.Errorf("Expected TimedOut to be %v, got %v", tC.timedOut, cmdErr.TimedOut)
			}
		})
	}
}

func TestUFWAllow(t *testing.T) {
	events := &recorder{}
	ufw := UFW{Runner: &FakeRunner{events: events}}
	rule := artifact.FirewallRule{Name: "rabbitmq-epmd", Direction: "in", Port: 4369, Protocol: "tcp", Policy: "allow"}

	if err := ufw.Allow(context.Background(), rule); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	events.Check(t, []string{"run ufw allow in proto tcp from any to any port 4369 comment rabbitmq-epmd"})
}
