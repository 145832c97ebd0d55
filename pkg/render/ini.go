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
	"strconv"
	"strings"

	"github.com/errm/queuestrap/pkg/settings"
	"github.com/go-ini/ini"
	"github.com/pkg/errors"
)

// SystemdDropIn renders the drop-in raising the broker's file descriptor
// limit and restarting it when it fails.
func SystemdDropIn(s settings.Settings) (string, error) {
	return iniFile("10-limits.conf", func(f *ini.File) error {
		service, err := f.NewSection("Service")
		if err != nil {
			return err
		}
		service.Comment = "# " + header
		return keys(service,
			"LimitNOFILE", strconv.Itoa(s.RabbitMQ.FileLimit),
			"Restart", "on-failure",
			"RestartSec", "10",
		)
	})
}

// UFWProfile renders the ufw application profile listing every broker port.
func UFWProfile(s settings.Settings) (string, error) {
	var ports []string
	for _, p := range s.RabbitMQ.Ports() {
		ports = append(ports, strconv.Itoa(p.Port))
	}
	return iniFile("rabbitmq", func(f *ini.File) error {
		app, err := f.NewSection("RabbitMQ")
		if err != nil {
			return err
		}
		app.Comment = "# " + header
		return keys(app,
			"title", "RabbitMQ",
			"description", "RabbitMQ message broker",
			"ports", strings.Join(ports, ",")+"/tcp",
		)
	})
}

func keys(sec *ini.Section, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if _, err := sec.NewKey(pairs[i], pairs[i+1]); err != nil {
			return errors.Wrapf(err, "unable to set %s", pairs[i])
		}
	}
	return nil
}

func iniFile(name string, build func(*ini.File) error) (string, error) {
	f := ini.Empty()
	if err := build(f); err != nil {
		return "", errors.Wrapf(err, "unable to build %s", name)
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return "", errors.Wrapf(err, "unable to write %s", name)
	}
	if _, err := ini.Load(buf.Bytes()); err != nil {
		return "", malformed(name, err)
	}
	return buf.String(), nil
}
