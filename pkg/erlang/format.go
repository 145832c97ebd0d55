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

package erlang

import "strings"

const (
	lineWidth  = 80
	indentStep = 2
)

// Document prints a term as a configuration file: an optional comment
// header, the term itself and the terminating full stop.
func Document(t Term, header ...string) string {
	var b strings.Builder
	b.WriteString(Header(header...))
	write(&b, t, 0)
	b.WriteString(".\n")
	return b.String()
}

// Header prints lines as a comment block followed by a blank line.
func Header(lines ...string) string {
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("%%%\n")
	for _, line := range lines {
		b.WriteString("%% " + line + "\n")
	}
	b.WriteString("%%%\n\n")
	return b.String()
}

// Format prints a term without a terminator.
// Terms that fit on a line are printed inline, anything longer is broken
// up one element per line.
func Format(t Term) string {
	var b strings.Builder
	write(&b, t, 0)
	return b.String()
}

func write(b *strings.Builder, t Term, indent int) {
	flat := t.inline()
	if indent+len(flat) <= lineWidth {
		b.WriteString(flat)
		return
	}
	switch v := t.(type) {
	case List:
		if len(v) == 0 {
			b.WriteString("[]")
			return
		}
		b.WriteString("[\n")
		for i, e := range v {
			b.WriteString(strings.Repeat(" ", indent+indentStep))
			write(b, e, indent+indentStep)
			if i < len(v)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat(" ", indent))
		b.WriteByte(']')
	case Tuple:
		if len(v) == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteByte('{')
		if len(v) > 1 {
			b.WriteString(join(v[:len(v)-1]))
			b.WriteString(", ")
		}
		write(b, v[len(v)-1], indent)
		b.WriteByte('}')
	default:
		b.WriteString(flat)
	}
}
