package render

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/errm/queuestrap/pkg/erlang"
	"github.com/errm/queuestrap/pkg/settings"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directory(endpoints ...string) *settings.Directory {
	return &settings.Directory{
		Endpoints:           endpoints,
		DNLookupAttribute:   "userPrincipalName",
		UserLookupBase:      "OU=Users,DC=example,DC=com",
		GroupLookupBase:     "OU=Groups,DC=example,DC=com",
		AdministratorsGroup: "CN=Queue Admins,OU=Groups,DC=example,DC=com",
	}
}

func TestErlangConfigIsWellFormed(t *testing.T) {
	nested := directory("ad1.example.com")
	nested.NestedGroups = true
	testCases := []struct {
		desc   string
		mutate func(*settings.Settings)
	}{
		{desc: "defaults", mutate: func(*settings.Settings) {}},
		{desc: "directory", mutate: func(s *settings.Settings) { s.Directory = directory("ad1.example.com", "ad2.example.com") }},
		{desc: "directory without endpoints", mutate: func(s *settings.Settings) { s.Directory = directory() }},
		{desc: "nested groups", mutate: func(s *settings.Settings) { s.Directory = nested }},
		{desc: "no peer discovery", mutate: func(s *settings.Settings) { s.RabbitMQ.PeerDiscovery = nil }},
		{desc: "mqtt", mutate: func(s *settings.Settings) { s.RabbitMQ.MQTTPort = 1883 }},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			s := settings.Defaults()
			tC.mutate(&s)

			doc, err := ErlangConfig(s)
			require.NoError(t, err)
			assert.NoError(t, erlang.Check(doc, erlang.Delimiters{}))
			assert.True(t, strings.HasSuffix(doc, ".\n"))
			assert.Equal(t, strings.Count(doc, "{"), strings.Count(doc, "}"))
			assert.Equal(t, strings.Count(doc, "["), strings.Count(doc, "]"))

			tmpl, err := ErlangConfigTemplate(s)
			require.NoError(t, err)
			assert.NoError(t, erlang.Check(tmpl, delimiters(s)))
		})
	}
}

func TestErlangConfigWithoutDirectory(t *testing.T) {
	s := settings.Defaults()
	doc, err := ErlangConfig(s)
	require.NoError(t, err)

	assert.NotContains(t, doc, "rabbitmq_auth_backend_ldap")
	assert.Contains(t, doc, "{auth_backends, [rabbit_auth_backend_internal]}")
	assert.Contains(t, doc, "{tcp_listeners, [5672]}")
	assert.Contains(t, doc, "{listener, [{port, 15672}]}")
	assert.Contains(t, doc, `{default_user, <<"guest">>}`)
	assert.Contains(t, doc, "{peer_discovery_backend, rabbit_peer_discovery_consul}")
}

func TestErlangConfigWithDirectory(t *testing.T) {
	s := settings.Defaults()
	s.Directory = directory("ad1.example.com")
	doc, err := ErlangConfig(s)
	require.NoError(t, err)

	assert.Contains(t, doc, "{rabbitmq_auth_backend_ldap,")
	assert.Contains(t, doc, `{servers, ["ad1.example.com"]}`)
	assert.Contains(t, doc, `{vhost_access_query, {in_group, "CN=Queue Admins,OU=Groups,DC=example,DC=com"}}`)
	assert.Contains(t, doc, "{management, {constant, false}}")
	assert.Contains(t, doc, "[rabbit_auth_backend_ldap, rabbit_auth_backend_internal]")
}

func TestDisableHeartbeat(t *testing.T) {
	s := settings.Defaults()
	doc, err := ErlangConfig(s)
	require.NoError(t, err)
	assert.Contains(t, doc, "{heartbeat, 60}")

	s.RabbitMQ.DisableHeartbeat = true
	doc, err = ErlangConfig(s)
	require.NoError(t, err)
	assert.Contains(t, doc, "{heartbeat, 0}")
}

func TestEmptyEndpointsRenderEmptyServers(t *testing.T) {
	s := settings.Defaults()
	s.Directory = directory()
	doc, err := ErlangConfig(s)
	require.NoError(t, err)
	assert.Contains(t, doc, "{servers, []}")
}

func TestLoopbackUsersKeepOrder(t *testing.T) {
	s := settings.Defaults()
	doc, err := ErlangConfig(s)
	require.NoError(t, err)
	assert.Contains(t, doc, `{loopback_users, [<<"guest">>, <<"consul">>]}`)
}

func TestErlangConfigTemplateLookup(t *testing.T) {
	s := settings.Defaults()
	tmpl, err := ErlangConfigTemplate(s)
	require.NoError(t, err)

	assert.Contains(t, tmpl, `{{ if keyExists "config/environment/directory/initialized" }}`)
	assert.Contains(t, tmpl, "{{ else }}")
	assert.Contains(t, tmpl, `{{ range $i, $e := ls "config/environment/directory/endpoints" }}{{ if $i }}, {{ end }}"{{ $e.Value }}"{{ end }}`)
	assert.Contains(t, tmpl, `"{{ keyOrDefault "config/environment/directory/query/users/lookupbase" "DC=example,DC=com" }}"`)
	assert.Equal(t, 1, strings.Count(tmpl, "{rabbitmq_auth_backend_ldap,"))
	assert.Equal(t, 2, strings.Count(tmpl, "{kernel, []}"), "both variants are complete documents")

	withDirectory := tmpl[strings.Index(tmpl, "}}")+2 : strings.Index(tmpl, "{{ else }}")]
	assert.NoError(t, erlang.Check(withDirectory, delimiters(s)))
}

func TestErlangConfigTemplateDisabledLookup(t *testing.T) {
	s := settings.Defaults()
	s.RabbitMQ.DisableDirectoryLookup = true
	tmpl, err := ErlangConfigTemplate(s)
	require.NoError(t, err)
	assert.NotContains(t, tmpl, "keyExists")
	assert.NotContains(t, tmpl, "rabbitmq_auth_backend_ldap")

	s.Directory = directory("ad1.example.com")
	tmpl, err = ErlangConfigTemplate(s)
	require.NoError(t, err)
	assert.NotContains(t, tmpl, "keyExists")
	assert.Contains(t, tmpl, `{servers, ["ad1.example.com"]}`)
}

func TestEnabledPlugins(t *testing.T) {
	doc, err := EnabledPlugins(settings.Defaults())
	require.NoError(t, err)
	expected := `[
  rabbitmq_auth_backend_ldap,
  rabbitmq_management,
  rabbitmq_peer_discovery_consul
].
`
	assert.Equal(t, expected, doc)
}

func TestErlangCookie(t *testing.T) {
	assert.Equal(t,
		`queue@{{ keyOrDefault "config/services/consul/datacenter" "consul" }}`,
		ErlangCookie(settings.Defaults()),
	)
}

func TestServiceJSON(t *testing.T) {
	s := settings.Defaults()
	out, err := ServiceJSON(s)
	require.NoError(t, err)
	assert.Contains(t, out, `"port": 15672`)

	var file ServiceFile
	require.NoError(t, json.Unmarshal([]byte(out), &file))
	require.Len(t, file.Services, 2)

	amqp := file.Services[0]
	assert.Equal(t, "rabbitmq.amqp", amqp.ID)
	assert.Equal(t, "queue", amqp.Name)
	assert.Equal(t, 5672, amqp.Port)
	assert.Equal(t, []string{"amqp"}, amqp.Tags)
	assert.Empty(t, amqp.Checks)

	http := file.Services[1]
	assert.Equal(t, 15672, http.Port)
	assert.Contains(t, http.Tags, "edgeproxyprefix-/services/queue strip=/services/queue")
	require.Len(t, http.Checks, 1)
	check := http.Checks[0]
	assert.Equal(t, "http://localhost:15672/api/aliveness-test/health", check.HTTP)
	assert.Equal(t, "15s", check.Interval)
	assert.Equal(t, "5s", check.Timeout)
	credentials := base64.StdEncoding.EncodeToString([]byte("consul:c0nsul"))
	assert.Equal(t, []string{"Basic " + credentials}, check.Header["Authorization"])
}

func TestServiceJSONFollowsHTTPPort(t *testing.T) {
	s := settings.Defaults()
	s.RabbitMQ.HTTPPort = 15000
	var file ServiceFile
	out, err := ServiceJSON(s)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &file))
	assert.Equal(t, 15000, file.Services[1].Port)
	assert.Equal(t, "http://localhost:15000/api/aliveness-test/health", file.Services[1].Checks[0].HTTP)
}

func TestServiceJSONWithoutManagement(t *testing.T) {
	s := settings.Defaults()
	s.RabbitMQ.EnabledPlugins = []string{"rabbitmq_peer_discovery_consul"}
	services := Services(s)
	require.Len(t, services, 1)
	assert.Equal(t, "rabbitmq.amqp", services[0].ID)
}

func TestAlivenessURLEscapesVhost(t *testing.T) {
	assert.Equal(t, "http://localhost:15672/api/aliveness-test/%2F", AlivenessURL(15672, "/"))
}

func TestDirectives(t *testing.T) {
	s := settings.Defaults()
	directives, err := Directives(s)
	require.NoError(t, err)
	require.Len(t, directives, 3)

	names := []string{}
	for _, d := range directives {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"erlang_cookie", "rabbitmq_cluster", "rabbitmq_config"}, names)
	assert.Equal(t, "/etc/consul-template.d/conf/rabbitmq_config.hcl", directives[2].Path(s))

	cookie := directives[0]
	assert.Equal(t, "chown rabbitmq:rabbitmq /var/lib/rabbitmq/.erlang.cookie && systemctl restart rabbitmq-server", cookie.Command)

	out, err := cookie.Render()
	require.NoError(t, err)
	for _, pattern := range []string{
		`template \{`,
		`source\s+= "/etc/consul-template.d/templates/erlang_cookie.ctmpl"`,
		`destination\s+= "/var/lib/rabbitmq/.erlang.cookie"`,
		`create_dest_dirs\s+= false`,
		`command_timeout\s+= "15s"`,
		`error_on_missing_key\s+= false`,
		`perms\s+= 0400`,
		`backup\s+= true`,
		`left_delimiter\s+= "\{\{"`,
		`right_delimiter\s+= "\}\}"`,
		`wait \{`,
		`min = "2s"`,
		`max = "10s"`,
	} {
		assert.Regexp(t, regexp.MustCompile(pattern), out)
	}
}

func TestDirectivePermsAreStrict(t *testing.T) {
	directives, err := Directives(settings.Defaults())
	require.NoError(t, err)
	for _, d := range directives {
		assert.Zero(t, d.Perms&^0550, "%s perms %#o", d.Name, d.Perms)
	}
}

func TestTelegrafInput(t *testing.T) {
	out, err := TelegrafInput(settings.Defaults())
	require.NoError(t, err)

	var cfg telegrafConfig
	_, err = toml.Decode(out, &cfg)
	require.NoError(t, err)
	require.Len(t, cfg.Inputs.RabbitMQ, 1)
	input := cfg.Inputs.RabbitMQ[0]
	assert.Equal(t, "http://localhost:15672", input.URL)
	assert.Equal(t, "telegraf", input.Username)
	assert.Equal(t, "telegraf", input.Password)
	assert.Equal(t, map[string]string{"influxdb_database": "services"}, input.Tags)
	assert.Contains(t, out, "[[inputs.rabbitmq]]")
}

func TestClusterScriptTemplate(t *testing.T) {
	out, err := ClusterScriptTemplate(settings.Defaults())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "#!/bin/sh\n"))
	assert.Contains(t, out, `rabbitmqctl set_cluster_name queue@{{ keyOrDefault "config/services/consul/datacenter" "consul" }}`)
}

func TestProvisionScript(t *testing.T) {
	out, err := ProvisionScript(settings.Defaults())
	require.NoError(t, err)
	for _, line := range []string{
		"vhost_exists health || rabbitmqctl add_vhost health",
		"vhost_exists logs || rabbitmqctl add_vhost logs",
		"rabbitmqctl add_user consul c0nsul",
		"rabbitmqctl set_user_tags consul monitoring",
		"rabbitmqctl set_permissions -p health consul '.*' '.*' '.*'",
		`rabbitmqctl set_policy -p / --priority 1 --apply-to queues ha-all '^(?!amq\.).*' '{"ha-mode":"all","ha-sync-mode":"automatic","queue-master-locator":"min-masters"}'`,
	} {
		assert.Contains(t, out, line)
	}
}

func TestProvisionScriptQuotesCredentials(t *testing.T) {
	s := settings.Defaults()
	s.RabbitMQ.Users[0].Password = `it's $(rm -rf /)`
	out, err := ProvisionScript(s)
	require.NoError(t, err)
	assert.NotContains(t, out, "c0nsul")
	assert.NoError(t, checkShell("provision", out))
}

func TestEnvFile(t *testing.T) {
	out, err := EnvFile(settings.Defaults())
	require.NoError(t, err)
	assert.Contains(t, out, "MNESIA_BASE=/srv/rabbitmq/data/mnesia\n")
	assert.Contains(t, out, "NODE_PORT=5672\n")
	assert.Contains(t, out, "DIST_PORT=25672\n")
}

func TestImageProvisionScript(t *testing.T) {
	out, err := ImageProvisionScript(settings.Defaults())
	require.NoError(t, err)
	assert.Contains(t, out, "rm -rf /srv/rabbitmq/data/mnesia")
}

func TestSystemdDropIn(t *testing.T) {
	out, err := SystemdDropIn(settings.Defaults())
	require.NoError(t, err)
	assert.Contains(t, out, "[Service]")
	assert.Regexp(t, `LimitNOFILE\s*=\s*65536`, out)
	assert.Regexp(t, `Restart\s*=\s*on-failure`, out)
}

func TestUFWProfile(t *testing.T) {
	s := settings.Defaults()
	s.RabbitMQ.MQTTPort = 1883
	out, err := UFWProfile(s)
	require.NoError(t, err)
	assert.Contains(t, out, "[RabbitMQ]")
	assert.Regexp(t, `ports\s*=\s*5672,15672,1883,4369,25672/tcp`, out)
}

func TestCheckShellRejectsMalformedScripts(t *testing.T) {
	assert.Error(t, checkShell("broken", "if true; then\n"))
	assert.NoError(t, checkShell("ok", "if true; then :; fi\n"))
}

func TestRenderErrorUnwraps(t *testing.T) {
	err := malformed("rabbitmq.config", erlang.ErrUnbalanced)
	var renderErr *RenderError
	require.True(t, errors.As(err, &renderErr))
	assert.Equal(t, "rabbitmq.config", renderErr.Artifact)
	assert.True(t, errors.Is(err, erlang.ErrUnbalanced))
	assert.Nil(t, malformed("rabbitmq.config", nil))
}

func TestKeys(t *testing.T) {
	s := settings.Defaults()
	assert.Contains(t, Keys(s), KeyDirectoryInitialized)
	s.Directory = directory()
	assert.Equal(t, []string{KeyDatacenter}, Keys(s))
}
