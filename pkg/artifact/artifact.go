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

// Package artifact pairs rendered content with where and how it is installed.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/errm/queuestrap/pkg/render"
	"github.com/errm/queuestrap/pkg/settings"
	"golang.org/x/sync/errgroup"
)

// Artifact is a rendered file and its install metadata.
type Artifact struct {
	Name    string
	Path    string
	Content string
	// Mode is the permission of the installed file. Zero keeps the mode of
	// the file being replaced, or 0644 for a new file.
	Mode   os.FileMode
	Owner  string
	Group  string
	Notify []Notification
}

// Credential bearing files are root owned and never more open than this.
const credentialMode os.FileMode = 0550

type entry struct {
	name         string
	path         string
	owner, group string
	mode         os.FileMode
	notify       []Notification
	render       func(settings.Settings) (string, error)
}

// Build renders every artifact of the node, in install order.
// It has no side effects and returns identical results for identical settings.
func Build(s settings.Settings) ([]Artifact, error) {
	entries, err := table(s)
	if err != nil {
		return nil, err
	}
	paths := map[string]string{}
	for _, e := range entries {
		path := filepath.Clean(e.path)
		if other, dup := paths[path]; dup {
			return nil, fmt.Errorf("%s and %s are both installed at %s", other, e.name, e.path)
		}
		paths[path] = e.name
	}
	artifacts := make([]Artifact, len(entries))
	var g errgroup.Group
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			content, err := e.render(s)
			if err != nil {
				return err
			}
			artifacts[i] = Artifact{
				Name:    e.name,
				Path:    e.path,
				Content: content,
				Mode:    e.mode,
				Owner:   e.owner,
				Group:   e.group,
				Notify:  e.notify,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return artifacts, nil
}

func table(s settings.Settings) ([]entry, error) {
	r := s.RabbitMQ
	ct := s.ConsulTemplate
	reloadTemplates := []Notification{Reload(ct.ServiceName)}
	restartBroker := []Notification{Restart(r.ServiceName)}

	templates := map[string]func(settings.Settings) (string, error){
		s.Erlang.CookieTemplate: func(s settings.Settings) (string, error) { return render.ErlangCookie(s), nil },
		r.ClusterTemplate:       render.ClusterScriptTemplate,
		r.ConfigTemplate:        render.ErlangConfigTemplate,
	}
	directives, err := render.Directives(s)
	if err != nil {
		return nil, err
	}

	var entries []entry
	for _, d := range directives {
		d := d
		source := filepath.Base(d.Source)
		renderTemplate, ok := templates[source]
		if !ok {
			return nil, fmt.Errorf("no template renders %s", source)
		}
		entries = append(entries,
			entry{
				name: source, path: d.Source,
				owner: "root", group: "root", mode: credentialMode,
				notify: reloadTemplates, render: renderTemplate,
			},
			entry{
				name: d.Name + ".hcl", path: d.Path(s),
				owner: "root", group: "root", mode: credentialMode,
				notify: reloadTemplates,
				render: func(settings.Settings) (string, error) { return d.Render() },
			},
		)
	}

	return append(entries,
		entry{
			name: "enabled_plugins", path: r.EnabledPluginsFile,
			owner: r.ServiceUser, group: r.ServiceGroup,
			notify: restartBroker, render: render.EnabledPlugins,
		},
		entry{
			name: "rabbitmq-env.conf", path: r.EnvFile,
			owner: r.ServiceUser, group: r.ServiceGroup,
			notify: restartBroker, render: render.EnvFile,
		},
		entry{
			name: "10-limits.conf", path: r.SystemdDropIn,
			owner: "root", group: "root", mode: 0644,
			notify: restartBroker,
			render: render.SystemdDropIn,
		},
		entry{
			name: "rabbitmq_provision.sh", path: r.ProvisionScript,
			owner: "root", group: "root", mode: credentialMode,
			notify: []Notification{Run(r.ProvisionScript)},
			render: render.ProvisionScript,
		},
		entry{
			name: "provision_image.sh", path: r.ImageProvisionScript,
			owner: "root", group: "root", mode: credentialMode,
			render: render.ImageProvisionScript,
		},
		entry{
			name: "rabbitmq.json", path: filepath.Join(s.Consul.ConfigPath, "rabbitmq.json"),
			owner: s.Consul.User, group: s.Consul.Group,
			notify: []Notification{ReloadConsul()}, render: render.ServiceJSON,
		},
		entry{
			name: "inputs_rabbitmq.conf", path: filepath.Join(s.Telegraf.ConfigPath, "inputs_rabbitmq.conf"),
			owner: s.Telegraf.User, group: s.Telegraf.Group, mode: 0640,
			notify: []Notification{Reload("telegraf")}, render: render.TelegrafInput,
		},
		entry{
			name: "ufw-rabbitmq", path: UFWProfilePath,
			owner: "root", group: "root", mode: 0644,
			render: render.UFWProfile,
		},
	), nil
}

// UFWProfilePath is where the ufw application profile is installed.
const UFWProfilePath = "/etc/ufw/applications.d/rabbitmq"
