package verify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/errm/queuestrap/pkg/settings"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	closed   bool
	released bool
}

func (f *fakeConn) IsClosed() bool { return f.closed }

func (f *fakeConn) Close() error {
	f.released = true
	return nil
}

func TestAMQP(t *testing.T) {
	s := settings.Defaults()
	conn := &fakeConn{}
	var dialed string
	c := Checker{dial: func(uri string) (connection, error) {
		dialed = uri
		return conn, nil
	}}

	require.NoError(t, c.AMQP(s))
	uri, err := amqp.ParseURI(dialed)
	require.NoError(t, err)
	assert.Equal(t, "consul", uri.Username)
	assert.Equal(t, "c0nsul", uri.Password)
	assert.Equal(t, "localhost", uri.Host)
	assert.Equal(t, 5672, uri.Port)
	assert.Equal(t, "health", uri.Vhost)
	assert.True(t, conn.released)
}

func TestAMQPFailures(t *testing.T) {
	s := settings.Defaults()
	c := Checker{Host: "10.0.0.5", dial: func(string) (connection, error) {
		return nil, errors.New("connection refused")
	}}
	err := c.AMQP(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amqp://10.0.0.5:5672")

	c.dial = func(string) (connection, error) { return &fakeConn{closed: true}, nil }
	assert.Error(t, c.AMQP(s))
}

func serve(t *testing.T, handler http.HandlerFunc) (Checker, settings.Settings) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	s := settings.Defaults()
	s.RabbitMQ.HTTPPort, err = strconv.Atoi(port)
	require.NoError(t, err)
	return Checker{Host: host, Client: srv.Client()}, s
}

func TestAliveness(t *testing.T) {
	c, s := serve(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "consul" || pass != "c0nsul" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "/api/aliveness-test/health", r.URL.Path)
		w.Write([]byte(`{"status":"ok"}`))
	})
	require.NoError(t, c.Aliveness(context.Background(), s))
}

func TestAlivenessFailures(t *testing.T) {
	testCases := []struct {
		desc   string
		status int
		body   string
	}{
		{desc: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"not_authorised"}`},
		{desc: "failed", status: http.StatusOK, body: `{"status":"failed","reason":"queue not reachable"}`},
		{desc: "garbage", status: http.StatusOK, body: `<html>`},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			c, s := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tC.status)
				w.Write([]byte(tC.body))
			})
			assert.Error(t, c.Aliveness(context.Background(), s))
		})
	}
}
