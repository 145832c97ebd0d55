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
	"fmt"

	"github.com/errm/queuestrap/pkg/erlang"
	"github.com/errm/queuestrap/pkg/settings"
)

// Key/value paths read by consul-template when it renders the templates.
const (
	KeyDatacenter           = "config/services/consul/datacenter"
	KeyDirectoryInitialized = "config/environment/directory/initialized"
	KeyDirectoryEndpoints   = "config/environment/directory/endpoints"
	KeyUserLookupBase       = "config/environment/directory/query/users/lookupbase"
	KeyGroupLookupBase      = "config/environment/directory/query/groups/lookupbase"
	KeyAdministratorsGroup  = "config/environment/directory/query/groups/queue/administrators"
)

// Keys lists the key/value paths the templates for s depend on.
func Keys(s settings.Settings) []string {
	keys := []string{KeyDatacenter}
	if s.DirectoryLookup() {
		keys = append(keys,
			KeyDirectoryInitialized,
			KeyDirectoryEndpoints,
			KeyUserLookupBase,
			KeyGroupLookupBase,
			KeyAdministratorsGroup,
		)
	}
	return keys
}

func delimiters(s settings.Settings) erlang.Delimiters {
	return erlang.Delimiters{
		Left:  s.ConsulTemplate.LeftDelimiter,
		Right: s.ConsulTemplate.RightDelimiter,
	}
}

// action wraps a consul-template pipeline in the configured delimiters.
func action(d erlang.Delimiters, pipeline string) string {
	return d.Left + " " + pipeline + " " + d.Right
}

func keyOrDefault(d erlang.Delimiters, key, fallback string) string {
	return action(d, fmt.Sprintf("keyOrDefault %q %q", key, fallback))
}

// clusterName is the node's cluster name, resolved by consul-template
// from the datacenter key.
func clusterName(s settings.Settings) string {
	return s.Consul.ServiceName + "@" + keyOrDefault(delimiters(s), KeyDatacenter, s.Consul.Datacenter)
}
