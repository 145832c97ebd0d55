package consul

import (
	"errors"
	"testing"

	"github.com/errm/queuestrap/pkg/render"
	"github.com/errm/queuestrap/pkg/settings"
	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	reloads  int
	services map[string]*api.AgentService
	err      error
}

func (f *fakeAgent) ServiceRegister(reg *api.AgentServiceRegistration) error {
	if f.err != nil {
		return f.err
	}
	if f.services == nil {
		f.services = map[string]*api.AgentService{}
	}
	f.services[reg.ID] = &api.AgentService{ID: reg.ID, Service: reg.Name, Port: reg.Port, Tags: reg.Tags}
	return nil
}

func (f *fakeAgent) Reload() error {
	f.reloads++
	return f.err
}

func (f *fakeAgent) Services() (map[string]*api.AgentService, error) {
	return f.services, f.err
}

type fakeKV map[string]string

func (f fakeKV) Get(key string, _ *api.QueryOptions) (*api.KVPair, *api.QueryMeta, error) {
	value, ok := f[key]
	if !ok {
		return nil, &api.QueryMeta{}, nil
	}
	return &api.KVPair{Key: key, Value: []byte(value)}, &api.QueryMeta{}, nil
}

func TestReload(t *testing.T) {
	agent := &fakeAgent{}
	a := &Agent{agent: agent}
	require.NoError(t, a.Reload())
	assert.Equal(t, 1, agent.reloads)

	agent.err = errors.New("connection refused")
	err := a.Reload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to reload consul")
}

func TestRegister(t *testing.T) {
	agent := &fakeAgent{}
	a := &Agent{agent: agent}
	s := settings.Defaults()
	require.NoError(t, a.Register(render.Services(s)))

	missing, err := a.MissingServices("rabbitmq.amqp", "rabbitmq.http")
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.Equal(t, 15672, agent.services["rabbitmq.http"].Port)

	reg := registration(render.Services(s)[1])
	require.Len(t, reg.Checks, 1)
	assert.Equal(t, "GET", reg.Checks[0].Method)
	assert.Equal(t, "15s", reg.Checks[0].Interval)
}

func TestMissingServices(t *testing.T) {
	a := &Agent{agent: &fakeAgent{services: map[string]*api.AgentService{
		"rabbitmq.amqp": {ID: "rabbitmq.amqp", Service: "queue", Port: 5672},
	}}}
	missing, err := a.MissingServices("rabbitmq.amqp", "rabbitmq.http")
	require.NoError(t, err)
	assert.Equal(t, []string{"rabbitmq.http"}, missing)
}

func TestMissingKeys(t *testing.T) {
	a := &Agent{kv: fakeKV{
		"config/services/consul/datacenter": "dc1",
	}}
	missing, err := a.MissingKeys(
		"config/services/consul/datacenter",
		"config/environment/directory/initialized",
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"config/environment/directory/initialized"}, missing)
}
