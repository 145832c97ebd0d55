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

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnbalanced         = errors.New("unbalanced brackets")
	ErrUnterminated       = errors.New("unterminated literal")
	ErrMissingTerminator  = errors.New("missing trailing full stop")
	ErrUnterminatedAction = errors.New("unterminated template action")
)

// Delimiters are the open and close markers of template actions. Text
// between them is skipped by Check. The zero value disables skipping.
type Delimiters struct {
	Left, Right string
}

var closers = map[string]string{"{": "}", "[": "]", "<<": ">>"}

// Check verifies that text is structurally sound Erlang: every bracket,
// binary and quoted literal is closed and the text ends with a full stop.
// Comments and template actions are ignored.
func Check(text string, d Delimiters) error {
	var (
		stack []string
		last  byte
	)
	for i := 0; i < len(text); {
		if d.Left != "" && strings.HasPrefix(text[i:], d.Left) {
			end := strings.Index(text[i+len(d.Left):], d.Right)
			if end < 0 {
				return errors.Wrapf(ErrUnterminatedAction, "at offset %d", i)
			}
			i += len(d.Left) + end + len(d.Right)
			continue
		}
		c := text[i]
		switch {
		case c == '%':
			for i < len(text) && text[i] != '\n' {
				i++
			}
			continue
		case c == '"' || c == '\'':
			end, err := skipQuoted(text, i, d)
			if err != nil {
				return err
			}
			i = end
			last = c
			continue
		case strings.HasPrefix(text[i:], "<<"):
			stack = append(stack, "<<")
			i += 2
			last = '<'
			continue
		case strings.HasPrefix(text[i:], ">>"):
			if err := pop(&stack, ">>", i); err != nil {
				return err
			}
			i += 2
			last = '>'
			continue
		case c == '{' || c == '[':
			stack = append(stack, string(c))
		case c == '}' || c == ']':
			if err := pop(&stack, string(c), i); err != nil {
				return err
			}
		}
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			last = c
		}
		i++
	}
	if len(stack) > 0 {
		return errors.Wrapf(ErrUnbalanced, "%d unclosed %q", len(stack), stack[len(stack)-1])
	}
	if last != '.' {
		return ErrMissingTerminator
	}
	return nil
}

func pop(stack *[]string, closer string, offset int) error {
	s := *stack
	if len(s) == 0 {
		return errors.Wrapf(ErrUnbalanced, "unexpected %q at offset %d", closer, offset)
	}
	open := s[len(s)-1]
	if closers[open] != closer {
		return errors.Wrapf(ErrUnbalanced, "%q closed by %q at offset %d", open, closer, offset)
	}
	*stack = s[:len(s)-1]
	return nil
}

// skipQuoted returns the offset just past the literal starting at start.
// Template actions inside the literal are skipped as a whole, they may
// contain quotes of their own.
func skipQuoted(text string, start int, d Delimiters) (int, error) {
	quote := text[start]
	for i := start + 1; i < len(text); {
		if d.Left != "" && strings.HasPrefix(text[i:], d.Left) {
			end := strings.Index(text[i+len(d.Left):], d.Right)
			if end < 0 {
				return 0, errors.Wrapf(ErrUnterminatedAction, "at offset %d", i)
			}
			i += len(d.Left) + end + len(d.Right)
			continue
		}
		switch text[i] {
		case '\\':
			i += 2
			continue
		case quote:
			return i + 1, nil
		}
		i++
	}
	return 0, errors.Wrapf(ErrUnterminated, "literal opened at offset %d", start)
}
