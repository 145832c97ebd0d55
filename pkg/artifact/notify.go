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

import "sort"

// Action is what a Notification asks the shim to do.
type Action string

const (
	ActionRestart      Action = "restart"
	ActionReload       Action = "reload"
	ActionReloadConsul Action = "reload-consul"
	ActionRun          Action = "run"
)

// Notification is an action owed once an artifact has changed on disk.
type Notification struct {
	Action Action
	// Target is a systemd unit for restart and reload, or a script path for run.
	Target string
}

func Restart(unit string) Notification { return Notification{Action: ActionRestart, Target: unit} }

func Reload(unit string) Notification { return Notification{Action: ActionReload, Target: unit} }

func ReloadConsul() Notification { return Notification{Action: ActionReloadConsul} }

func Run(script string) Notification { return Notification{Action: ActionRun, Target: script} }

func (n Notification) String() string {
	if n.Target == "" {
		return string(n.Action)
	}
	return string(n.Action) + " " + n.Target
}

// order ranks actions so that services are reloaded before they are
// restarted, and scripts run against a restarted broker.
var order = map[Action]int{
	ActionReloadConsul: 0,
	ActionReload:       1,
	ActionRestart:      2,
	ActionRun:          3,
}

// Pending collects the notifications of changed artifacts. Each
// notification is returned once, however many artifacts raised it.
func Pending(changed []Artifact) []Notification {
	seen := map[Notification]bool{}
	var pending []Notification
	for _, a := range changed {
		for _, n := range a.Notify {
			if seen[n] {
				continue
			}
			seen[n] = true
			pending = append(pending, n)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return order[pending[i].Action] < order[pending[j].Action]
	})
	return pending
}
