/*
Copyright 2018 Edward Robinson.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package consul talks to the local Consul agent.
package consul

import (
	"sort"

	"github.com/errm/queuestrap/pkg/render"
	"github.com/hashicorp/consul/api"
	"github.com/pkg/errors"
)

type agentAPI interface {
	Reload() error
	Services() (map[string]*api.AgentService, error)
	ServiceRegister(*api.AgentServiceRegistration) error
}

type kvAPI interface {
	Get(string, *api.QueryOptions) (*api.KVPair, *api.QueryMeta, error)
}

// Agent is the local Consul agent.
type Agent struct {
	agent agentAPI
	kv    kvAPI
}

// New connects to the agent listening on address.
func New(address string) (*Agent, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create consul client for %s", address)
	}
	return &Agent{agent: client.Agent(), kv: client.KV()}, nil
}

// Reload makes the agent read its configuration directory again.
func (a *Agent) Reload() error {
	return errors.Wrap(a.agent.Reload(), "unable to reload consul")
}

// Register registers the services with the agent directly, without
// waiting for the service file to be picked up by a reload.
func (a *Agent) Register(services []render.ServiceRegistration) error {
	for _, s := range services {
		if err := a.agent.ServiceRegister(registration(s)); err != nil {
			return errors.Wrapf(err, "unable to register %s", s.ID)
		}
	}
	return nil
}

func registration(s render.ServiceRegistration) *api.AgentServiceRegistration {
	reg := &api.AgentServiceRegistration{
		ID:                s.ID,
		Name:              s.Name,
		Port:              s.Port,
		Tags:              s.Tags,
		EnableTagOverride: s.EnableTagOverride,
	}
	for _, c := range s.Checks {
		reg.Checks = append(reg.Checks, &api.AgentServiceCheck{
			CheckID:  c.ID,
			Name:     c.Name,
			HTTP:     c.HTTP,
			Method:   c.Method,
			Header:   c.Header,
			Interval: c.Interval,
			Timeout:  c.Timeout,
		})
	}
	return reg
}

// MissingServices returns the ids that are not registered with the agent.
func (a *Agent) MissingServices(ids ...string) ([]string, error) {
	services, err := a.agent.Services()
	if err != nil {
		return nil, errors.Wrap(err, "unable to list consul services")
	}
	var missing []string
	for _, id := range ids {
		if _, ok := services[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// MissingKeys returns the keys that are absent from the key/value store.
// Templates fall back to their defaults for these.
func (a *Agent) MissingKeys(keys ...string) ([]string, error) {
	var missing []string
	for _, key := range keys {
		pair, _, err := a.kv.Get(key, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read key %s", key)
		}
		if pair == nil {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing, nil
}
