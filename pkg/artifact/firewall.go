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

package artifact

import (
	"strconv"

	"github.com/errm/queuestrap/pkg/settings"
)

// FirewallRule opens one broker port.
type FirewallRule struct {
	Name      string
	Direction string
	Port      int
	Protocol  string
	Policy    string
	// Source is the network allowed to connect, any when empty.
	Source      string
	Description string
}

// Args are the ufw arguments adding the rule.
func (r FirewallRule) Args() []string {
	from := "any"
	if r.Source != "" {
		from = r.Source
	}
	return []string{
		r.Policy, r.Direction,
		"proto", r.Protocol,
		"from", from,
		"to", "any",
		"port", strconv.Itoa(r.Port),
		"comment", r.Name,
	}
}

// Rules lists the inbound rules for every port the broker listens on.
func Rules(s settings.Settings) []FirewallRule {
	var rules []FirewallRule
	for _, p := range s.RabbitMQ.Ports() {
		rules = append(rules, FirewallRule{
			Name:        p.Name,
			Direction:   "in",
			Port:        p.Port,
			Protocol:    "tcp",
			Policy:      "allow",
			Source:      s.Firewall.Source,
			Description: p.Description,
		})
	}
	return rules
}
