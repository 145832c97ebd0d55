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
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/errm/queuestrap/pkg/settings"
	"github.com/pkg/errors"
)

type telegrafConfig struct {
	Inputs telegrafInputs `toml:"inputs"`
}

type telegrafInputs struct {
	RabbitMQ []rabbitMQInput `toml:"rabbitmq"`
}

type rabbitMQInput struct {
	URL      string            `toml:"url"`
	Username string            `toml:"username"`
	Password string            `toml:"password"`
	Tags     map[string]string `toml:"tags,omitempty"`
}

// TelegrafInput renders the Telegraf rabbitmq input plugin configuration.
func TelegrafInput(s settings.Settings) (string, error) {
	password, _ := s.RabbitMQ.Password(s.Telegraf.Username)
	cfg := telegrafConfig{Inputs: telegrafInputs{RabbitMQ: []rabbitMQInput{{
		URL:      fmt.Sprintf("http://localhost:%d", s.RabbitMQ.HTTPPort),
		Username: s.Telegraf.Username,
		Password: password,
		Tags:     s.Telegraf.Tags,
	}}}}

	var buf bytes.Buffer
	buf.WriteString("# " + header + "\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return "", errors.Wrap(err, "unable to encode telegraf input")
	}
	var check telegrafConfig
	if _, err := toml.Decode(buf.String(), &check); err != nil {
		return "", malformed("inputs_rabbitmq.conf", err)
	}
	return buf.String(), nil
}
