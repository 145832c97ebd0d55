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

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"dario.cat/mergo"
	"github.com/errm/queuestrap/pkg/util"
	"github.com/go-ldap/ldap/v3"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
)

// Cluster formation through a peer discovery backend arrived in 3.7.0.
var peerDiscoveryVersion = version.Must(version.NewVersion("3.7.0"))

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load merges overrides over the defaults and validates the result.
//
// Only non zero override values replace defaults. Maps are merged key by
// key, slices are replaced as a whole.
// A *ValidationError listing every problem is returned if the merged
// settings are inconsistent.
func Load(overrides Settings) (Settings, error) {
	s := Defaults()
	if err := mergo.Merge(&s, overrides, mergo.WithOverride); err != nil {
		return Settings{}, errors.Wrap(err, "unable to merge settings overrides")
	}
	if s.RabbitMQ.DisablePeerDiscovery {
		s.RabbitMQ.PeerDiscovery = nil
	}
	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks field ranges and every cross reference in s.
func Validate(s Settings) error {
	var result *multierror.Error
	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return errors.Wrap(err, "unable to validate settings")
		}
		for _, fe := range fieldErrs {
			result = multierror.Append(result, fieldError(fe))
		}
	}
	for _, check := range []func(Settings) []error{checkPorts, checkVhosts, checkUsers, checkPlugins, checkDirectory, checkTemplates, checkTemplateValues} {
		result = multierror.Append(result, check(s)...)
	}
	if err := result.ErrorOrNil(); err != nil {
		return &ValidationError{Problems: result.Errors}
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	field := strings.TrimPrefix(fe.Namespace(), "Settings.")
	if fe.Param() != "" {
		return fmt.Errorf("%s: %v does not satisfy %s=%s", field, fe.Value(), fe.Tag(), fe.Param())
	}
	return fmt.Errorf("%s: %v does not satisfy %s", field, fe.Value(), fe.Tag())
}

func checkPorts(s Settings) []error {
	var errs []error
	seen := map[int]string{}
	for _, p := range s.RabbitMQ.Ports() {
		if !util.IsPort(p.Port) {
			errs = append(errs, fmt.Errorf("%s port %d is outside 1-65535", p.Name, p.Port))
			continue
		}
		if other, dup := seen[p.Port]; dup {
			errs = append(errs, fmt.Errorf("%s port %d is already used by %s", p.Name, p.Port, other))
		}
		seen[p.Port] = p.Name
	}
	return errs
}

func checkVhosts(s Settings) []error {
	var errs []error
	r := s.RabbitMQ
	created := map[string]bool{}
	for _, key := range r.VirtualHosts {
		if _, ok := r.VhostName(key); !ok {
			errs = append(errs, fmt.Errorf("rabbitmq.virtual_hosts references undefined vhost %q", key))
		}
		if created[key] {
			errs = append(errs, fmt.Errorf("rabbitmq.virtual_hosts lists %q twice", key))
		}
		created[key] = true
	}
	if _, ok := r.VhostName(r.HealthVhost); !ok {
		errs = append(errs, fmt.Errorf("rabbitmq.health_vhost references undefined vhost %q", r.HealthVhost))
	}
	for _, u := range r.Users {
		for _, p := range u.Permissions {
			if _, ok := r.VhostName(p.Vhost); !ok {
				errs = append(errs, fmt.Errorf("user %q has permissions on undefined vhost %q", u.Name, p.Vhost))
			}
		}
	}
	for _, p := range r.Policies {
		if _, ok := r.VhostName(p.Vhost); !ok {
			errs = append(errs, fmt.Errorf("policy %q applies to undefined vhost %q", p.Name, p.Vhost))
		}
	}
	return errs
}

func checkUsers(s Settings) []error {
	var errs []error
	r := s.RabbitMQ
	names := map[string]bool{}
	for _, u := range r.Users {
		if u.Name == r.DefaultUser {
			errs = append(errs, fmt.Errorf("user %q is the default user and cannot be redefined", u.Name))
		}
		if names[u.Name] {
			errs = append(errs, fmt.Errorf("user %q is defined twice", u.Name))
		}
		names[u.Name] = true
	}
	for _, name := range r.LoopbackUsers {
		if _, ok := r.Password(name); !ok {
			errs = append(errs, fmt.Errorf("rabbitmq.loopback_users references undefined user %q", name))
		}
	}
	if health, ok := r.User(r.HealthUser); !ok {
		errs = append(errs, fmt.Errorf("rabbitmq.health_user references undefined user %q", r.HealthUser))
	} else if !hasPermission(health, r.HealthVhost) {
		errs = append(errs, fmt.Errorf("health user %q has no permissions on vhost %q", health.Name, r.HealthVhost))
	}
	if _, ok := r.Password(s.Telegraf.Username); !ok {
		errs = append(errs, fmt.Errorf("telegraf.username references undefined user %q", s.Telegraf.Username))
	}
	return errs
}

func hasPermission(u User, vhost string) bool {
	for _, p := range u.Permissions {
		if p.Vhost == vhost {
			return true
		}
	}
	return false
}

func checkPlugins(s Settings) []error {
	var errs []error
	r := s.RabbitMQ
	for _, p := range r.DisabledPlugins {
		if r.PluginEnabled(p) {
			errs = append(errs, fmt.Errorf("plugin %q is both enabled and disabled", p))
		}
	}
	if s.LDAP() && !r.PluginEnabled("rabbitmq_auth_backend_ldap") {
		errs = append(errs, errors.New("directory integration requires the rabbitmq_auth_backend_ldap plugin"))
	}
	if r.MQTTPort != 0 && !r.PluginEnabled("rabbitmq_mqtt") {
		errs = append(errs, errors.New("rabbitmq.mqtt_port requires the rabbitmq_mqtt plugin"))
	}
	current, err := version.NewVersion(r.Version)
	if err != nil {
		return append(errs, errors.Wrapf(err, "rabbitmq.version %q", r.Version))
	}
	if r.PeerDiscovery != nil {
		if !r.PluginEnabled("rabbitmq_peer_discovery_consul") {
			errs = append(errs, errors.New("peer discovery requires the rabbitmq_peer_discovery_consul plugin"))
		}
		if current.LessThan(peerDiscoveryVersion) {
			errs = append(errs, fmt.Errorf("peer discovery requires RabbitMQ %s or later, got %s", peerDiscoveryVersion, current))
		}
	}
	return errs
}

func checkDirectory(s Settings) []error {
	if s.Directory == nil {
		return nil
	}
	var errs []error
	dns := []struct{ field, dn string }{
		{"directory.user_lookup_base", s.Directory.UserLookupBase},
		{"directory.group_lookup_base", s.Directory.GroupLookupBase},
		{"directory.administrators_group", s.Directory.AdministratorsGroup},
	}
	for _, d := range dns {
		if d.dn == "" {
			continue
		}
		if _, err := ldap.ParseDN(d.dn); err != nil {
			errs = append(errs, errors.Wrapf(err, "%s %q is not a valid DN", d.field, d.dn))
		}
	}
	return errs
}

// checkTemplates makes sure every render directive has its own template,
// directive file and destination.
func checkTemplates(s Settings) []error {
	var errs []error
	r := s.RabbitMQ
	directives := []struct{ field, template, destination string }{
		{"erlang.cookie_template", s.Erlang.CookieTemplate, s.Erlang.CookieFile},
		{"rabbitmq.cluster_template", r.ClusterTemplate, r.ClusterScript},
		{"rabbitmq.config_template", r.ConfigTemplate, r.ConfigFile},
	}
	names := map[string]string{}
	destinations := map[string]string{}
	for _, d := range directives {
		name := strings.TrimSuffix(d.template, filepath.Ext(d.template))
		if other, dup := names[name]; dup {
			errs = append(errs, fmt.Errorf("%s %q clashes with %s", d.field, d.template, other))
		}
		names[name] = d.field
		dest := filepath.Clean(d.destination)
		if other, dup := destinations[dest]; dup {
			errs = append(errs, fmt.Errorf("%s renders to %s, already used by %s", d.field, d.destination, other))
		}
		destinations[dest] = d.field
	}
	return errs
}

type namedValue struct{ field, value string }

// checkTemplateValues rejects values copied into consul-template sources
// that would be read as template actions.
func checkTemplateValues(s Settings) []error {
	ct := s.ConsulTemplate
	if ct.LeftDelimiter == "" || ct.RightDelimiter == "" {
		return nil
	}
	r := s.RabbitMQ
	values := []namedValue{
		{"rabbitmq.default_user", r.DefaultUser},
		{"rabbitmq.default_pass", r.DefaultPass},
		{"rabbitmq.log_dir", r.LogDir},
		{"consul.service_name", s.Consul.ServiceName},
		{"consul.datacenter", s.Consul.Datacenter},
	}
	for _, u := range r.LoopbackUsers {
		values = append(values, namedValue{"rabbitmq.loopback_users", u})
	}
	if pd := r.PeerDiscovery; pd != nil {
		values = append(values,
			namedValue{"rabbitmq.peer_discovery.host", pd.Host},
			namedValue{"rabbitmq.peer_discovery.scheme", pd.Scheme},
			namedValue{"rabbitmq.peer_discovery.service", pd.Service},
		)
		for _, tag := range pd.ServiceTags {
			values = append(values, namedValue{"rabbitmq.peer_discovery.service_tags", tag})
		}
	}
	if d := s.Directory; d != nil {
		values = append(values,
			namedValue{"directory.dn_lookup_attribute", d.DNLookupAttribute},
			namedValue{"directory.user_lookup_base", d.UserLookupBase},
			namedValue{"directory.group_lookup_base", d.GroupLookupBase},
			namedValue{"directory.administrators_group", d.AdministratorsGroup},
		)
		for _, e := range d.Endpoints {
			values = append(values, namedValue{"directory.endpoints", e})
		}
	}

	var errs []error
	for _, v := range values {
		if strings.Contains(v.value, ct.LeftDelimiter) || strings.Contains(v.value, ct.RightDelimiter) {
			errs = append(errs, fmt.Errorf("%s %q contains a template delimiter (%s or %s)", v.field, v.value, ct.LeftDelimiter, ct.RightDelimiter))
		}
	}
	return errs
}
