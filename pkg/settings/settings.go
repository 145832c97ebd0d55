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

// Package settings holds the typed configuration tree of a broker node.
//
// A Settings value is built once by Load and treated as read only afterwards.
// Boolean switches are phrased so that false is the default, which lets
// overrides be merged over the defaults without losing explicit values.
package settings

import "time"

// Settings is the complete configuration of a node.
type Settings struct {
	Erlang         Erlang         `mapstructure:"erlang"`
	Firewall       Firewall       `mapstructure:"firewall"`
	RabbitMQ       RabbitMQ       `mapstructure:"rabbitmq"`
	Directory      *Directory     `mapstructure:"directory"`
	ConsulTemplate ConsulTemplate `mapstructure:"consul_template"`
	Consul         Consul         `mapstructure:"consul"`
	Telegraf       Telegraf       `mapstructure:"telegraf"`
}

type Erlang struct {
	InstallMethod  string `mapstructure:"install_method" validate:"oneof=esl package source"`
	Version        string `mapstructure:"version" validate:"required"`
	CookieTemplate string `mapstructure:"cookie_template" validate:"required"`
	CookieFile     string `mapstructure:"cookie_file" validate:"required,startswith=/"`
}

// Firewall controls the ufw rules opened for the broker ports.
type Firewall struct {
	// Source restricts inbound traffic to a network, any source when empty.
	Source       string `mapstructure:"source" validate:"omitempty,cidr"`
	DisableRules bool   `mapstructure:"disable_rules"`
}

type RabbitMQ struct {
	Version      string `mapstructure:"version" validate:"required"`
	ServiceName  string `mapstructure:"service_name" validate:"required"`
	ServiceUser  string `mapstructure:"service_user" validate:"required"`
	ServiceGroup string `mapstructure:"service_group" validate:"required"`

	MnesiaDir            string `mapstructure:"mnesia_dir" validate:"required,startswith=/"`
	LogDir               string `mapstructure:"log_dir" validate:"required,startswith=/"`
	ConfigFile           string `mapstructure:"config_file" validate:"required,startswith=/"`
	ConfigTemplate       string `mapstructure:"config_template" validate:"required"`
	ClusterTemplate      string `mapstructure:"cluster_template" validate:"required"`
	ClusterScript        string `mapstructure:"cluster_script" validate:"required,startswith=/"`
	EnabledPluginsFile   string `mapstructure:"enabled_plugins_file" validate:"required,startswith=/"`
	EnvFile              string `mapstructure:"env_file" validate:"required,startswith=/"`
	ProvisionScript      string `mapstructure:"provision_script" validate:"required,startswith=/"`
	ImageProvisionScript string `mapstructure:"image_provision_script" validate:"required,startswith=/"`
	SystemdDropIn        string `mapstructure:"systemd_drop_in" validate:"required,startswith=/"`

	AMQPPort int `mapstructure:"amqp_port" validate:"min=1,max=65535"`
	HTTPPort int `mapstructure:"http_port" validate:"min=1,max=65535"`
	// MQTTPort is only opened and configured when non zero.
	MQTTPort int `mapstructure:"mqtt_port" validate:"min=0,max=65535"`
	EPMDPort int `mapstructure:"epmd_port" validate:"min=1,max=65535"`

	Heartbeat          int    `mapstructure:"heartbeat" validate:"min=1"`
	DisableHeartbeat   bool   `mapstructure:"disable_heartbeat"`
	LogLevel           string `mapstructure:"log_level" validate:"oneof=debug info warning error critical none"`
	ConnectionLogLevel string `mapstructure:"connection_log_level" validate:"oneof=debug info warning error critical none"`
	DisableReverseDNS  bool   `mapstructure:"disable_reverse_dns"`
	FileLimit          int    `mapstructure:"file_limit" validate:"min=1024"`

	DefaultUser   string   `mapstructure:"default_user" validate:"required"`
	DefaultPass   string   `mapstructure:"default_pass" validate:"required"`
	LoopbackUsers []string `mapstructure:"loopback_users" validate:"dive,required"`

	// HealthUser and HealthVhost are used by the aliveness check.
	// HealthVhost is a key of Vhosts.
	HealthUser  string `mapstructure:"health_user" validate:"required"`
	HealthVhost string `mapstructure:"health_vhost" validate:"required"`

	// Vhosts maps a stable key to the vhost name, VirtualHosts lists the
	// keys of the vhosts that are created on the node.
	Vhosts       map[string]string `mapstructure:"vhosts" validate:"dive,keys,required,endkeys,required"`
	VirtualHosts []string          `mapstructure:"virtual_hosts" validate:"dive,required"`
	Users        []User            `mapstructure:"users" validate:"dive"`
	Policies     []Policy          `mapstructure:"policies" validate:"dive"`

	EnabledPlugins  []string `mapstructure:"enabled_plugins" validate:"dive,required"`
	DisabledPlugins []string `mapstructure:"disabled_plugins" validate:"dive,required"`

	ProxyPath string `mapstructure:"proxy_path" validate:"required,startswith=/"`

	PeerDiscovery        *PeerDiscovery `mapstructure:"peer_discovery"`
	DisablePeerDiscovery bool           `mapstructure:"disable_peer_discovery"`

	// DisableDirectoryLookup turns off the key/value gated LDAP block that is
	// rendered when no static Directory is configured.
	DisableDirectoryLookup bool `mapstructure:"disable_directory_lookup"`
}

type User struct {
	Name        string       `mapstructure:"name" validate:"required"`
	Password    string       `mapstructure:"password" validate:"required"`
	Tags        []string     `mapstructure:"tags"`
	Permissions []Permission `mapstructure:"permissions" validate:"dive"`
}

// Permission grants a user access to the vhost with the given key.
type Permission struct {
	Vhost     string `mapstructure:"vhost" validate:"required"`
	Configure string `mapstructure:"configure" validate:"required"`
	Write     string `mapstructure:"write" validate:"required"`
	Read      string `mapstructure:"read" validate:"required"`
}

type Policy struct {
	Name       string            `mapstructure:"name" validate:"required"`
	Vhost      string            `mapstructure:"vhost" validate:"required"`
	Pattern    string            `mapstructure:"pattern" validate:"required"`
	Definition map[string]string `mapstructure:"definition" validate:"required,min=1"`
	Priority   int               `mapstructure:"priority" validate:"min=0"`
	ApplyTo    string            `mapstructure:"apply_to" validate:"omitempty,oneof=queues exchanges all"`
}

// PeerDiscovery configures cluster formation through the Consul catalog.
type PeerDiscovery struct {
	Host        string   `mapstructure:"host" validate:"required"`
	Port        int      `mapstructure:"port" validate:"min=1,max=65535"`
	Scheme      string   `mapstructure:"scheme" validate:"oneof=http https"`
	Service     string   `mapstructure:"service" validate:"required"`
	ServiceTags []string `mapstructure:"service_tags"`
	// Cleanup removes nodes that are no longer registered in Consul.
	Cleanup bool `mapstructure:"cleanup"`
}

// Directory holds static LDAP (Active Directory) integration settings.
type Directory struct {
	Endpoints           []string `mapstructure:"endpoints" validate:"dive,hostname_rfc1123|ip"`
	DNLookupAttribute   string   `mapstructure:"dn_lookup_attribute" validate:"required"`
	UserLookupBase      string   `mapstructure:"user_lookup_base" validate:"required"`
	GroupLookupBase     string   `mapstructure:"group_lookup_base" validate:"required"`
	AdministratorsGroup string   `mapstructure:"administrators_group" validate:"required"`
	NestedGroups        bool     `mapstructure:"nested_groups"`
}

type ConsulTemplate struct {
	ConfigPath     string        `mapstructure:"config_path" validate:"required,startswith=/"`
	TemplatePath   string        `mapstructure:"template_path" validate:"required,startswith=/"`
	ServiceName    string        `mapstructure:"service_name" validate:"required"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" validate:"gt=0"`
	MinWait        time.Duration `mapstructure:"min_wait" validate:"gt=0"`
	MaxWait        time.Duration `mapstructure:"max_wait" validate:"gtefield=MinWait"`
	LeftDelimiter  string        `mapstructure:"left_delimiter" validate:"required"`
	RightDelimiter string        `mapstructure:"right_delimiter" validate:"required"`
	DisableBackup  bool          `mapstructure:"disable_backup"`
}

type Consul struct {
	ConfigPath    string        `mapstructure:"config_path" validate:"required,startswith=/"`
	ServiceName   string        `mapstructure:"service_name" validate:"required"`
	User          string        `mapstructure:"user" validate:"required"`
	Group         string        `mapstructure:"group" validate:"required"`
	Address       string        `mapstructure:"address" validate:"required,hostname_port"`
	CheckInterval time.Duration `mapstructure:"check_interval" validate:"gt=0"`
	CheckTimeout  time.Duration `mapstructure:"check_timeout" validate:"gt=0,ltfield=CheckInterval"`
	Datacenter    string        `mapstructure:"datacenter" validate:"required"`
}

type Telegraf struct {
	ConfigPath string            `mapstructure:"config_path" validate:"required,startswith=/"`
	User       string            `mapstructure:"user" validate:"required"`
	Group      string            `mapstructure:"group" validate:"required"`
	Username   string            `mapstructure:"username" validate:"required"`
	Tags       map[string]string `mapstructure:"tags"`
}

// NamedPort is a port the broker listens on.
type NamedPort struct {
	Name        string
	Port        int
	Description string
}

// Ports lists every port the broker listens on, in a stable order.
func (r RabbitMQ) Ports() []NamedPort {
	ports := []NamedPort{
		{Name: "rabbitmq-amqp", Port: r.AMQPPort, Description: "Allow RabbitMQ AMQP traffic"},
		{Name: "rabbitmq-http", Port: r.HTTPPort, Description: "Allow RabbitMQ HTTP traffic"},
	}
	if r.MQTTPort != 0 {
		ports = append(ports, NamedPort{Name: "rabbitmq-mqtt", Port: r.MQTTPort, Description: "Allow RabbitMQ MQTT traffic"})
	}
	return append(ports,
		NamedPort{Name: "rabbitmq-epmd", Port: r.EPMDPort, Description: "Allow Erlang port mapper traffic"},
		NamedPort{Name: "rabbitmq-dist", Port: r.DistPort(), Description: "Allow Erlang distribution traffic"},
	)
}

// DistPort is the Erlang distribution port, fixed at AMQP port + 20000.
func (r RabbitMQ) DistPort() int {
	return r.AMQPPort + 20000
}

// VhostName resolves a vhost key.
func (r RabbitMQ) VhostName(key string) (string, bool) {
	name, ok := r.Vhosts[key]
	return name, ok && name != ""
}

// User looks up a user by name. The default user has no entry in Users.
func (r RabbitMQ) User(name string) (User, bool) {
	for _, u := range r.Users {
		if u.Name == name {
			return u, true
		}
	}
	return User{}, false
}

// Password returns the password of a defined user, including the default user.
func (r RabbitMQ) Password(name string) (string, bool) {
	if name == r.DefaultUser {
		return r.DefaultPass, true
	}
	u, ok := r.User(name)
	return u.Password, ok
}

func (r RabbitMQ) PluginEnabled(name string) bool {
	for _, p := range r.EnabledPlugins {
		if p == name {
			return true
		}
	}
	return false
}

// DirectoryLookup reports whether the config template should carry the
// key/value gated LDAP block.
func (s Settings) DirectoryLookup() bool {
	return s.Directory == nil && !s.RabbitMQ.DisableDirectoryLookup
}

// LDAP reports whether the rendered config may authenticate against a directory.
func (s Settings) LDAP() bool {
	return s.Directory != nil || s.DirectoryLookup()
}
