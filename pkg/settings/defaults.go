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

package settings

import "time"

// Defaults returns a fresh copy of the default settings tree.
func Defaults() Settings {
	return Settings{
		Erlang: Erlang{
			InstallMethod:  "esl",
			Version:        "1:20.2.2",
			CookieTemplate: "erlang_cookie.ctmpl",
			CookieFile:     "/var/lib/rabbitmq/.erlang.cookie",
		},
		RabbitMQ: RabbitMQ{
			Version:      "3.7.3",
			ServiceName:  "rabbitmq-server",
			ServiceUser:  "rabbitmq",
			ServiceGroup: "rabbitmq",

			MnesiaDir:            "/srv/rabbitmq/data/mnesia",
			LogDir:               "/var/log/rabbitmq",
			ConfigFile:           "/etc/rabbitmq/rabbitmq.config",
			ConfigTemplate:       "rabbitmq_config.ctmpl",
			ClusterTemplate:      "rabbitmq_cluster.ctmpl",
			ClusterScript:        "/tmp/rabbitmq_cluster.sh",
			EnabledPluginsFile:   "/etc/rabbitmq/enabled_plugins",
			EnvFile:              "/etc/rabbitmq/rabbitmq-env.conf",
			ProvisionScript:      "/usr/local/sbin/rabbitmq_provision.sh",
			ImageProvisionScript: "/etc/init.d/provision_image.sh",
			SystemdDropIn:        "/etc/systemd/system/rabbitmq-server.service.d/10-limits.conf",

			AMQPPort: 5672,
			HTTPPort: 15672,
			EPMDPort: 4369,

			Heartbeat:          60,
			LogLevel:           "info",
			ConnectionLogLevel: "info",
			FileLimit:          65536,

			DefaultUser:   "guest",
			DefaultPass:   "guest",
			LoopbackUsers: []string{"guest", "consul"},

			HealthUser:  "consul",
			HealthVhost: "health",

			Vhosts: map[string]string{
				"default": "/",
				"health":  "health",
				"logs":    "logs",
			},
			VirtualHosts: []string{"health", "logs"},
			Users: []User{
				{
					Name:     "consul",
					Password: "c0nsul",
					Tags:     []string{"monitoring"},
					Permissions: []Permission{
						{Vhost: "health", Configure: ".*", Write: ".*", Read: ".*"},
					},
				},
				{
					Name:     "telegraf",
					Password: "telegraf",
					Tags:     []string{"monitoring"},
				},
			},
			Policies: []Policy{
				{
					Name:    "ha-all",
					Vhost:   "default",
					Pattern: `^(?!amq\.).*`,
					Definition: map[string]string{
						"ha-mode":              "all",
						"ha-sync-mode":         "automatic",
						"queue-master-locator": "min-masters",
					},
					Priority: 1,
					ApplyTo:  "queues",
				},
			},

			EnabledPlugins: []string{
				"rabbitmq_auth_backend_ldap",
				"rabbitmq_management",
				"rabbitmq_peer_discovery_consul",
			},
			DisabledPlugins: []string{
				"rabbitmq_management_visualiser",
			},

			ProxyPath: "/services/queue",
			PeerDiscovery: &PeerDiscovery{
				Host:        "localhost",
				Port:        8500,
				Scheme:      "http",
				Service:     "queue",
				ServiceTags: []string{"amqp"},
			},
		},
		ConsulTemplate: ConsulTemplate{
			ConfigPath:     "/etc/consul-template.d/conf",
			TemplatePath:   "/etc/consul-template.d/templates",
			ServiceName:    "consul-template",
			CommandTimeout: 15 * time.Second,
			MinWait:        2 * time.Second,
			MaxWait:        10 * time.Second,
			LeftDelimiter:  "{{",
			RightDelimiter: "}}",
		},
		Consul: Consul{
			ConfigPath:    "/etc/consul/conf.d",
			ServiceName:   "queue",
			User:          "consul",
			Group:         "consul",
			Address:       "127.0.0.1:8500",
			CheckInterval: 15 * time.Second,
			CheckTimeout:  5 * time.Second,
			Datacenter:    "consul",
		},
		Telegraf: Telegraf{
			ConfigPath: "/etc/telegraf/telegraf.d",
			User:       "telegraf",
			Group:      "telegraf",
			Username:   "telegraf",
			Tags: map[string]string{
				"influxdb_database": "services",
			},
		},
	}
}
