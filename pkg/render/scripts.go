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
	"encoding/json"
	"strings"
	"text/template"

	"github.com/errm/queuestrap/pkg/settings"
	"github.com/gobuffalo/packr/v2"
	"github.com/pkg/errors"
	"mvdan.cc/sh/v3/syntax"
)

var scripts = packr.New("queuestrap-scripts", "./templates")

var scriptFuncs = template.FuncMap{"quote": shellQuote}

func shellQuote(s string) (string, error) {
	return syntax.Quote(s, syntax.LangPOSIX)
}

// ErlangCookie renders the consul-template source of the Erlang cookie.
func ErlangCookie(s settings.Settings) string {
	return clusterName(s)
}

// ClusterScriptTemplate renders the consul-template source of the script
// that names the cluster after the datacenter.
func ClusterScriptTemplate(s settings.Settings) (string, error) {
	return script("rabbitmq_cluster.sh.tmpl", struct {
		Header      string
		ClusterName string
	}{header, clusterName(s)})
}

// EnvFile renders rabbitmq-env.conf.
func EnvFile(s settings.Settings) (string, error) {
	return script("rabbitmq-env.conf.tmpl", struct {
		Header     string
		MnesiaBase string
		LogBase    string
		NodePort   int
		DistPort   int
	}{header, s.RabbitMQ.MnesiaDir, s.RabbitMQ.LogDir, s.RabbitMQ.AMQPPort, s.RabbitMQ.DistPort()})
}

// ImageProvisionScript renders the hook that clears node state from an image.
func ImageProvisionScript(s settings.Settings) (string, error) {
	return script("provision_image.sh.tmpl", struct {
		Header    string
		Service   string
		MnesiaDir string
	}{header, s.RabbitMQ.ServiceName, s.RabbitMQ.MnesiaDir})
}

type provisionUser struct {
	Name        string
	Password    string
	Tags        []string
	Permissions []settings.Permission
}

type provisionPolicy struct {
	settings.Policy
	Definition string
}

// ProvisionScript renders the script creating vhosts, users, permissions and
// policies. Vhost keys are resolved to names.
func ProvisionScript(s settings.Settings) (string, error) {
	r := s.RabbitMQ
	data := struct {
		Header     string
		MnesiaBase string
		Vhosts     []string
		Users      []provisionUser
		Policies   []provisionPolicy
	}{Header: header, MnesiaBase: r.MnesiaDir}

	for _, key := range r.VirtualHosts {
		name, _ := r.VhostName(key)
		data.Vhosts = append(data.Vhosts, name)
	}
	for _, u := range r.Users {
		pu := provisionUser{Name: u.Name, Password: u.Password, Tags: u.Tags}
		for _, p := range u.Permissions {
			p.Vhost, _ = r.VhostName(p.Vhost)
			pu.Permissions = append(pu.Permissions, p)
		}
		data.Users = append(data.Users, pu)
	}
	for _, p := range r.Policies {
		definition, err := json.Marshal(p.Definition)
		if err != nil {
			return "", errors.Wrapf(err, "unable to encode policy %s", p.Name)
		}
		p.Vhost, _ = r.VhostName(p.Vhost)
		data.Policies = append(data.Policies, provisionPolicy{Policy: p, Definition: string(definition)})
	}
	return script("rabbitmq_provision.sh.tmpl", data)
}

func script(name string, data interface{}) (string, error) {
	src, err := scripts.FindString(name)
	if err != nil {
		return "", errors.Wrapf(err, "unable to find template %s", name)
	}
	tmpl, err := template.New(name).Funcs(scriptFuncs).Parse(src)
	if err != nil {
		return "", errors.Wrapf(err, "unable to parse template %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "unable to execute template %s", name)
	}
	out := buf.String()
	return out, malformed(strings.TrimSuffix(name, ".tmpl"), checkShell(name, out))
}

func checkShell(name, src string) error {
	_, err := syntax.NewParser(syntax.Variant(syntax.LangPOSIX)).Parse(strings.NewReader(src), name)
	return err
}
