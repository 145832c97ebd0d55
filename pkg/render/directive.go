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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/errm/queuestrap/pkg/settings"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
)

// Directive tells consul-template how to render one template and what to
// run once the rendered file changes.
type Directive struct {
	// Name is the base name of both the template and the directive file.
	Name string

	Source            string
	Destination       string
	CreateDestDirs    bool
	Command           string
	CommandTimeout    time.Duration
	ErrorOnMissingKey bool
	Perms             os.FileMode
	Backup            bool
	LeftDelimiter     string
	RightDelimiter    string
	MinWait           time.Duration
	MaxWait           time.Duration
}

// Path is where the directive file is installed.
func (d Directive) Path(s settings.Settings) string {
	return filepath.Join(s.ConsulTemplate.ConfigPath, d.Name+".hcl")
}

// Directives lists the render directives for the node, in install order.
func Directives(s settings.Settings) ([]Directive, error) {
	r := s.RabbitMQ
	cookie, err := command(
		"chown {} {}", r.ServiceUser+":"+r.ServiceGroup, s.Erlang.CookieFile,
	)
	if err != nil {
		return nil, err
	}
	restart, err := command("systemctl restart {}", r.ServiceName)
	if err != nil {
		return nil, err
	}
	cluster, err := command("sh {}", r.ClusterScript)
	if err != nil {
		return nil, err
	}
	config, err := command("chgrp {} {}", r.ServiceGroup, r.ConfigFile)
	if err != nil {
		return nil, err
	}
	return []Directive{
		directive(s, s.Erlang.CookieTemplate, s.Erlang.CookieFile, 0400, cookie+" && "+restart),
		directive(s, r.ClusterTemplate, r.ClusterScript, 0550, cluster),
		directive(s, r.ConfigTemplate, r.ConfigFile, 0440, config+" && "+restart),
	}, nil
}

func directive(s settings.Settings, template, destination string, perms os.FileMode, cmd string) Directive {
	ct := s.ConsulTemplate
	return Directive{
		Name:           strings.TrimSuffix(template, filepath.Ext(template)),
		Source:         filepath.Join(ct.TemplatePath, template),
		Destination:    destination,
		Command:        cmd,
		CommandTimeout: ct.CommandTimeout,
		Perms:          perms,
		Backup:         !ct.DisableBackup,
		LeftDelimiter:  ct.LeftDelimiter,
		RightDelimiter: ct.RightDelimiter,
		MinWait:        ct.MinWait,
		MaxWait:        ct.MaxWait,
	}
}

// command fills each {} in format with a shell quoted argument.
func command(format string, args ...string) (string, error) {
	for _, arg := range args {
		quoted, err := shellQuote(arg)
		if err != nil {
			return "", errors.Wrapf(err, "unable to quote %q", arg)
		}
		format = strings.Replace(format, "{}", quoted, 1)
	}
	return format, nil
}

// Render prints the directive as a consul-template HCL template block.
func (d Directive) Render() (string, error) {
	f := hclwrite.NewEmptyFile()
	root := f.Body()
	tpl := root.AppendNewBlock("template", nil).Body()
	tpl.SetAttributeValue("source", cty.StringVal(d.Source))
	tpl.SetAttributeValue("destination", cty.StringVal(d.Destination))
	tpl.SetAttributeValue("create_dest_dirs", cty.BoolVal(d.CreateDestDirs))
	tpl.SetAttributeValue("command", cty.StringVal(d.Command))
	tpl.SetAttributeValue("command_timeout", cty.StringVal(d.CommandTimeout.String()))
	tpl.SetAttributeValue("error_on_missing_key", cty.BoolVal(d.ErrorOnMissingKey))
	// consul-template reads perms as an octal literal.
	tpl.SetAttributeRaw("perms", hclwrite.Tokens{{
		Type:  hclsyntax.TokenNumberLit,
		Bytes: []byte(fmt.Sprintf("%#o", uint32(d.Perms.Perm()))),
	}})
	tpl.SetAttributeValue("backup", cty.BoolVal(d.Backup))
	tpl.SetAttributeValue("left_delimiter", cty.StringVal(d.LeftDelimiter))
	tpl.SetAttributeValue("right_delimiter", cty.StringVal(d.RightDelimiter))
	wait := tpl.AppendNewBlock("wait", nil).Body()
	wait.SetAttributeValue("min", cty.StringVal(d.MinWait.String()))
	wait.SetAttributeValue("max", cty.StringVal(d.MaxWait.String()))

	out := "# " + header + "\n\n" + string(hclwrite.Format(f.Bytes()))
	return out, malformed(d.Name+".hcl", checkHCL(d.Name+".hcl", out))
}

func checkHCL(name, src string) error {
	_, diags := hclparse.NewParser().ParseHCL([]byte(src), name)
	if diags.HasErrors() {
		return diags
	}
	return nil
}
