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

// Package erlang builds and prints the subset of Erlang terms used by
// RabbitMQ's classic configuration format.
//
// Documents are built as a tree of Terms rather than spliced text, so every
// printed document has matching brackets by construction. Check verifies
// that property on arbitrary text, including text containing template actions.
package erlang

import (
	"regexp"
	"strconv"
	"strings"
)

// Term is a printable Erlang term.
type Term interface {
	inline() string
}

// Atom is an Erlang atom, quoted only when it has to be.
type Atom string

// Int is an Erlang integer.
type Int int

// Bool is printed as the atoms true and false.
type Bool bool

// String is a double quoted Erlang string (a char list).
type String string

// Binary is a binary literal: <<"...">>.
type Binary string

// Tuple is {a, b, ...}.
type Tuple []Term

// List is [a, b, ...].
type List []Term

// Raw is printed verbatim. It carries template actions that are filled in
// later by consul-template, such as a range over key/value entries.
type Raw string

var bareAtom = regexp.MustCompile(`^[a-z][a-zA-Z0-9_@]*$`)

func (a Atom) inline() string {
	if bareAtom.MatchString(string(a)) {
		return string(a)
	}
	return "'" + escape(string(a), '\'') + "'"
}

func (i Int) inline() string { return strconv.Itoa(int(i)) }

func (b Bool) inline() string {
	if b {
		return "true"
	}
	return "false"
}

func (s String) inline() string { return `"` + escape(string(s), '"') + `"` }

func (b Binary) inline() string { return `<<"` + escape(string(b), '"') + `">>` }

func (r Raw) inline() string { return string(r) }

func (t Tuple) inline() string { return "{" + join([]Term(t)) + "}" }

func (l List) inline() string { return "[" + join([]Term(l)) + "]" }

// KV is shorthand for the ubiquitous {key, value} pair.
func KV(key string, value Term) Tuple {
	return Tuple{Atom(key), value}
}

// Atoms turns names into a list of atoms.
func Atoms(names ...string) List {
	l := make(List, 0, len(names))
	for _, n := range names {
		l = append(l, Atom(n))
	}
	return l
}

// Binaries turns values into a list of binaries.
func Binaries(values ...string) List {
	l := make(List, 0, len(values))
	for _, v := range values {
		l = append(l, Binary(v))
	}
	return l
}

// Strings turns values into a list of strings.
func Strings(values ...string) List {
	l := make(List, 0, len(values))
	for _, v := range values {
		l = append(l, String(v))
	}
	return l
}

func join(terms []Term) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.inline()
	}
	return strings.Join(parts, ", ")
}

func escape(s string, quote byte) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' || c == quote:
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
