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

package render

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/errm/queuestrap/pkg/settings"
	"github.com/pkg/errors"
)

// ServiceFile is the document Consul loads from its configuration directory.
type ServiceFile struct {
	Services []ServiceRegistration `json:"services"`
}

// ServiceRegistration advertises one broker endpoint.
type ServiceRegistration struct {
	Checks            []HealthCheck `json:"checks,omitempty"`
	EnableTagOverride bool          `json:"enableTagOverride"`
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Port              int           `json:"port"`
	Tags              []string      `json:"tags"`
}

type HealthCheck struct {
	Header   map[string][]string `json:"header,omitempty"`
	HTTP     string              `json:"http"`
	ID       string              `json:"id"`
	Interval string              `json:"interval"`
	Method   string              `json:"method"`
	Name     string              `json:"name"`
	Timeout  string              `json:"timeout"`
}

// Services lists the registrations for s. The HTTP endpoint is only
// advertised when the management plugin is enabled.
func Services(s settings.Settings) []ServiceRegistration {
	r := s.RabbitMQ
	services := []ServiceRegistration{{
		ID:   "rabbitmq.amqp",
		Name: s.Consul.ServiceName,
		Port: r.AMQPPort,
		Tags: []string{"amqp"},
	}}
	if r.PluginEnabled("rabbitmq_management") {
		services = append(services, ServiceRegistration{
			Checks: []HealthCheck{AlivenessCheck(s)},
			ID:     "rabbitmq.http",
			Name:   s.Consul.ServiceName,
			Port:   r.HTTPPort,
			Tags: []string{
				"http",
				"management",
				fmt.Sprintf("edgeproxyprefix-%s strip=%s", r.ProxyPath, r.ProxyPath),
			},
		})
	}
	if r.MQTTPort != 0 {
		services = append(services, ServiceRegistration{
			ID:   "rabbitmq.mqtt",
			Name: s.Consul.ServiceName,
			Port: r.MQTTPort,
			Tags: []string{"mqtt"},
		})
	}
	return services
}

// AlivenessCheck probes the management API aliveness test on the health vhost.
func AlivenessCheck(s settings.Settings) HealthCheck {
	r := s.RabbitMQ
	password, _ := r.Password(r.HealthUser)
	vhost, _ := r.VhostName(r.HealthVhost)
	credentials := base64.StdEncoding.EncodeToString([]byte(r.HealthUser + ":" + password))
	return HealthCheck{
		Header:   map[string][]string{"Authorization": {"Basic " + credentials}},
		HTTP:     AlivenessURL(r.HTTPPort, vhost),
		ID:       "rabbitmq_health",
		Interval: s.Consul.CheckInterval.String(),
		Method:   "GET",
		Name:     "RabbitMQ health",
		Timeout:  s.Consul.CheckTimeout.String(),
	}
}

// AlivenessURL is the management API aliveness test for vhost on the local node.
func AlivenessURL(port int, vhost string) string {
	return fmt.Sprintf("http://localhost:%d/api/aliveness-test/%s", port, url.PathEscape(vhost))
}

// ServiceJSON renders the Consul service definition file.
func ServiceJSON(s settings.Settings) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ServiceFile{Services: Services(s)}); err != nil {
		return "", errors.Wrap(err, "unable to encode service definition")
	}
	if !json.Valid(buf.Bytes()) {
		return "", malformed("rabbitmq.json", errors.New("invalid JSON"))
	}
	return buf.String(), nil
}
