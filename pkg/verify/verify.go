// Package verify runs smoke checks against a converged broker.
package verify

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/errm/queuestrap/pkg/render"
	"github.com/errm/queuestrap/pkg/settings"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

type connection interface {
	IsClosed() bool
	Close() error
}

func dial(uri string) (connection, error) {
	return amqp.Dial(uri)
}

// Checker talks to the broker the way a client of the node would.
type Checker struct {
	// Host defaults to localhost.
	Host   string
	Client *http.Client
	dial   func(string) (connection, error)
}

func (c Checker) host() string {
	if c.Host == "" {
		return "localhost"
	}
	return c.Host
}

// AMQP opens and closes a connection as the health user on the health vhost.
func (c Checker) AMQP(s settings.Settings) error {
	uri := amqpURI(c.host(), s)
	d := c.dial
	if d == nil {
		d = dial
	}
	conn, err := d(uri.String())
	if err != nil {
		return errors.Wrapf(err, "unable to connect to amqp://%s:%d", uri.Host, uri.Port)
	}
	defer conn.Close()
	if conn.IsClosed() {
		return errors.Errorf("connection to amqp://%s:%d closed by the broker", uri.Host, uri.Port)
	}
	return nil
}

func amqpURI(host string, s settings.Settings) amqp.URI {
	r := s.RabbitMQ
	password, _ := r.Password(r.HealthUser)
	vhost, _ := r.VhostName(r.HealthVhost)
	return amqp.URI{
		Scheme:   "amqp",
		Host:     host,
		Port:     r.AMQPPort,
		Username: r.HealthUser,
		Password: password,
		Vhost:    vhost,
	}
}

type aliveness struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Aliveness calls the management API aliveness test with the same request
// the Consul health check makes.
func (c Checker) Aliveness(ctx context.Context, s settings.Settings) error {
	check := render.AlivenessCheck(s)
	u, err := url.Parse(check.HTTP)
	if err != nil {
		return errors.Wrap(err, "unable to parse aliveness url")
	}
	u.Host = net.JoinHostPort(c.host(), strconv.Itoa(s.RabbitMQ.HTTPPort))

	timeout := s.Consul.CheckTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, check.Method, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "unable to build aliveness request")
	}
	for name, values := range check.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "aliveness request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("aliveness test returned %s", resp.Status)
	}
	var body aliveness
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return errors.Wrap(err, "unable to decode aliveness response")
	}
	if body.Status != "ok" {
		return errors.Errorf("aliveness test reported %q: %s", body.Status, body.Reason)
	}
	return nil
}
