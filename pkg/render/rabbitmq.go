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
	"sort"
	"strconv"

	"github.com/errm/queuestrap/pkg/erlang"
	"github.com/errm/queuestrap/pkg/settings"
)

const header = "Generated by queuestrap, local changes will be overwritten."

// ErlangConfig renders rabbitmq.config from static settings only.
// The rabbitmq_auth_backend_ldap section is present only when s.Directory is set.
func ErlangConfig(s settings.Settings) (string, error) {
	doc := erlang.Document(brokerConfig(s, staticDirectory(s.Directory)), header)
	return doc, malformed("rabbitmq.config", erlang.Check(doc, erlang.Delimiters{}))
}

// ErlangConfigTemplate renders the consul-template source of rabbitmq.config.
//
// Without static directory settings, and unless lookup is disabled, the
// template carries two complete documents: one authenticating against the
// directory described in the key/value store, used once the directory keys
// have been initialized, and one without directory integration.
func ErlangConfigTemplate(s settings.Settings) (string, error) {
	d := delimiters(s)
	if !s.DirectoryLookup() {
		doc := erlang.Document(brokerConfig(s, staticDirectory(s.Directory)), header)
		return doc, malformed(s.RabbitMQ.ConfigTemplate, erlang.Check(doc, d))
	}
	withDirectory := erlang.Format(brokerConfig(s, lookupDirectory(d))) + ".\n"
	withoutDirectory := erlang.Format(brokerConfig(s, nil)) + ".\n"
	for _, variant := range []string{withDirectory, withoutDirectory} {
		if err := erlang.Check(variant, d); err != nil {
			return "", malformed(s.RabbitMQ.ConfigTemplate, err)
		}
	}
	doc := erlang.Header(header) +
		action(d, "if keyExists "+strconv.Quote(KeyDirectoryInitialized)) + "\n" +
		withDirectory +
		action(d, "else") + "\n" +
		withoutDirectory +
		action(d, "end") + "\n"
	return doc, malformed(s.RabbitMQ.ConfigTemplate, erlang.Check(doc, d))
}

// EnabledPlugins renders the enabled_plugins file.
func EnabledPlugins(s settings.Settings) (string, error) {
	plugins := append([]string(nil), s.RabbitMQ.EnabledPlugins...)
	sort.Strings(plugins)
	doc := erlang.Document(erlang.Atoms(plugins...))
	return doc, malformed("enabled_plugins", erlang.Check(doc, erlang.Delimiters{}))
}

func brokerConfig(s settings.Settings, ldap erlang.List) erlang.List {
	r := s.RabbitMQ
	cfg := erlang.List{
		erlang.KV("kernel", erlang.List{}),
		erlang.KV("rabbitmq_management", erlang.List{
			erlang.KV("listener", erlang.List{erlang.KV("port", erlang.Int(r.HTTPPort))}),
		}),
		erlang.KV("rabbit", rabbit(s, ldap != nil)),
	}
	if r.MQTTPort != 0 {
		cfg = append(cfg, erlang.KV("rabbitmq_mqtt", erlang.List{
			erlang.KV("tcp_listeners", erlang.List{erlang.Int(r.MQTTPort)}),
		}))
	}
	if ldap != nil {
		cfg = append(cfg, erlang.KV("rabbitmq_auth_backend_ldap", ldap))
	}
	return cfg
}

func rabbit(s settings.Settings, ldap bool) erlang.List {
	r := s.RabbitMQ
	backends := erlang.Atoms("rabbit_auth_backend_internal")
	if ldap {
		backends = erlang.Atoms("rabbit_auth_backend_ldap", "rabbit_auth_backend_internal")
	}
	terms := erlang.List{erlang.KV("auth_backends", backends)}
	if pd := r.PeerDiscovery; pd != nil {
		terms = append(terms, erlang.KV("cluster_formation", erlang.List{
			erlang.KV("peer_discovery_backend", erlang.Atom("rabbit_peer_discovery_consul")),
			erlang.KV("peer_discovery_consul", erlang.List{
				erlang.KV("consul_host", erlang.String(pd.Host)),
				erlang.KV("consul_port", erlang.Int(pd.Port)),
				erlang.KV("consul_scheme", erlang.String(pd.Scheme)),
				erlang.KV("consul_svc", erlang.String(pd.Service)),
				erlang.KV("consul_svc_port", erlang.Int(r.AMQPPort)),
				erlang.KV("consul_svc_tags", erlang.Strings(pd.ServiceTags...)),
			}),
			erlang.KV("node_cleanup", erlang.List{
				erlang.KV("cleanup_only_log_warning", erlang.Bool(!pd.Cleanup)),
			}),
		}))
	}
	return append(terms,
		erlang.KV("default_pass", erlang.Binary(r.DefaultPass)),
		erlang.KV("default_user", erlang.Binary(r.DefaultUser)),
		erlang.KV("heartbeat", erlang.Int(heartbeat(r))),
		erlang.KV("log", erlang.List{
			erlang.KV("file", erlang.List{
				erlang.KV("file", erlang.String(r.LogDir+"/rabbit.log")),
				erlang.KV("level", erlang.Atom(r.LogLevel)),
			}),
		}),
		erlang.KV("log_levels", erlang.List{erlang.KV("connection", erlang.Atom(r.ConnectionLogLevel))}),
		erlang.KV("loopback_users", erlang.Binaries(r.LoopbackUsers...)),
		erlang.KV("reverse_dns_lookups", erlang.Bool(!r.DisableReverseDNS)),
		erlang.KV("tcp_listen_options", tcpListenOptions),
		erlang.KV("tcp_listeners", erlang.List{erlang.Int(r.AMQPPort)}),
	)
}

// heartbeat is the negotiated heartbeat timeout in seconds, 0 turns it off.
func heartbeat(r settings.RabbitMQ) int {
	if r.DisableHeartbeat {
		return 0
	}
	return r.Heartbeat
}

var tcpListenOptions = erlang.List{
	erlang.Atom("binary"),
	erlang.KV("packet", erlang.Atom("raw")),
	erlang.KV("reuseaddr", erlang.Bool(true)),
	erlang.KV("backlog", erlang.Int(128)),
	erlang.KV("nodelay", erlang.Bool(true)),
	erlang.KV("exit_on_close", erlang.Bool(false)),
	erlang.KV("keepalive", erlang.Bool(false)),
	erlang.KV("linger", erlang.Tuple{erlang.Bool(true), erlang.Int(0)}),
}

// staticDirectory is the LDAP section for a directory known at render time,
// or nil when there is none.
func staticDirectory(dir *settings.Directory) erlang.List {
	if dir == nil {
		return nil
	}
	admins := erlang.Tuple{erlang.Atom("in_group"), erlang.String(dir.AdministratorsGroup)}
	if dir.NestedGroups {
		admins = erlang.Tuple{erlang.Atom("in_group_nested"), erlang.String(dir.AdministratorsGroup)}
	}
	return ldapSection(
		erlang.Strings(dir.Endpoints...),
		erlang.String(dir.DNLookupAttribute),
		erlang.String(dir.UserLookupBase),
		erlang.String(dir.GroupLookupBase),
		admins,
	)
}

// lookupDirectory is the LDAP section for a directory described in the
// key/value store. Values are consul-template actions.
func lookupDirectory(d erlang.Delimiters) erlang.List {
	servers := action(d, "range $i, $e := ls "+strconv.Quote(KeyDirectoryEndpoints)) +
		action(d, "if $i") + ", " + action(d, "end") +
		`"` + action(d, "$e.Value") + `"` +
		action(d, "end")
	quoted := func(key, fallback string) erlang.Term {
		return erlang.Raw(`"` + keyOrDefault(d, key, fallback) + `"`)
	}
	return ldapSection(
		erlang.List{erlang.Raw(servers)},
		erlang.String("userPrincipalName"),
		quoted(KeyUserLookupBase, "DC=example,DC=com"),
		quoted(KeyGroupLookupBase, "DC=example,DC=com"),
		erlang.Tuple{erlang.Atom("in_group"), quoted(KeyAdministratorsGroup, "CN=Administrators,CN=Builtin,DC=example,DC=com")},
	)
}

func ldapSection(servers erlang.List, attribute, userBase, groupBase erlang.Term, admins erlang.Tuple) erlang.List {
	return erlang.List{
		erlang.KV("servers", servers),
		erlang.KV("dn_lookup_attribute", attribute),
		erlang.KV("dn_lookup_base", userBase),
		erlang.KV("group_lookup_base", groupBase),
		erlang.KV("other_bind", erlang.Atom("as_user")),
		erlang.KV("vhost_access_query", admins),
		erlang.KV("tag_queries", erlang.List{
			erlang.KV("administrator", admins),
			erlang.KV("management", erlang.Tuple{erlang.Atom("constant"), erlang.Bool(false)}),
		}),
	}
}
