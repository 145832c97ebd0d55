package erlang_test

import (
	"strings"
	"testing"

	"github.com/errm/queuestrap/pkg/erlang"
	"github.com/pkg/errors"
)

var templateDelims = erlang.Delimiters{Left: "{{", Right: "}}"}

func TestInlineTerms(t *testing.T) {
	testCases := []struct {
		term     erlang.Term
		expected string
	}{
		{term: erlang.Atom("rabbit"), expected: "rabbit"},
		{term: erlang.Atom("rabbit@node-1"), expected: "'rabbit@node-1'"},
		{term: erlang.Atom("Upper"), expected: "'Upper'"},
		{term: erlang.Int(5672), expected: "5672"},
		{term: erlang.Bool(false), expected: "false"},
		{term: erlang.String(`say "hi"`), expected: `"say \"hi\""`},
		{term: erlang.Binary("guest"), expected: `<<"guest">>`},
		{term: erlang.List{}, expected: "[]"},
		{term: erlang.KV("linger", erlang.Tuple{erlang.Bool(true), erlang.Int(0)}), expected: "{linger, {true, 0}}"},
		{term: erlang.Binaries("guest", "consul"), expected: `[<<"guest">>, <<"consul">>]`},
	}
	for _, tC := range testCases {
		actual := erlang.Format(tC.term)
		if actual != tC.expected {
			t.Errorf("expected %s, got %s", tC.expected, actual)
		}
	}
}

func TestDocumentBreaksLongTerms(t *testing.T) {
	doc := erlang.Document(erlang.List{
		erlang.KV("kernel", erlang.List{}),
		erlang.KV("rabbit", erlang.List{
			erlang.KV("auth_backends", erlang.Atoms("rabbit_auth_backend_ldap", "rabbit_auth_backend_internal")),
			erlang.KV("loopback_users", erlang.Binaries("guest", "consul")),
			erlang.KV("heartbeat", erlang.Int(60)),
		}),
	}, "Generated by queuestrap")

	expected := `%%%
%% Generated by queuestrap
%%%

[
  {kernel, []},
  {rabbit, [
    {auth_backends, [rabbit_auth_backend_ldap, rabbit_auth_backend_internal]},
    {loopback_users, [<<"guest">>, <<"consul">>]},
    {heartbeat, 60}
  ]}
].
`
	if doc != expected {
		t.Errorf("unexpected document:\n%s\nexpected:\n%s", doc, expected)
	}
	if err := erlang.Check(doc, erlang.Delimiters{}); err != nil {
		t.Errorf("document should be well formed: %v", err)
	}
}

func TestCheck(t *testing.T) {
	testCases := []struct {
		desc  string
		text  string
		delim erlang.Delimiters
		err   error
	}{
		{desc: "empty list", text: "[].", err: nil},
		{desc: "nested", text: "[{a, [{b, <<\"c\">>}]}].\n", err: nil},
		{desc: "bracket in string", text: `[{a, "]}"}].`, err: nil},
		{desc: "bracket in comment", text: "% ]]]\n[].", err: nil},
		{desc: "missing full stop", text: "[{a, b}]", err: erlang.ErrMissingTerminator},
		{desc: "unclosed tuple", text: "[{a, b].", err: erlang.ErrUnbalanced},
		{desc: "unclosed list", text: "[{a, b}.", err: erlang.ErrUnbalanced},
		{desc: "stray closer", text: "[]}.", err: erlang.ErrUnbalanced},
		{desc: "unclosed binary", text: `[<<"a"].`, err: erlang.ErrUnbalanced},
		{desc: "unterminated string", text: `["a].`, err: erlang.ErrUnterminated},
		{
			desc:  "action with quotes inside a string",
			text:  `[{base, "{{ keyOrDefault "a/b" "DC=x" }}"}].`,
			delim: templateDelims,
			err:   nil,
		},
		{
			desc:  "action with brackets",
			text:  `[{servers, [{{ range ls "x" }}"{{ .Value }}"{{ end }}]}].`,
			delim: templateDelims,
			err:   nil,
		},
		{
			desc:  "unterminated action",
			text:  `[{{ if keyExists "x" ].`,
			delim: templateDelims,
			err:   erlang.ErrUnterminatedAction,
		},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			err := erlang.Check(tC.text, tC.delim)
			if tC.err == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tC.err != nil && !errors.Is(err, tC.err) {
				t.Errorf("expected %v, got %v", tC.err, err)
			}
		})
	}
}

func TestRawIsVerbatim(t *testing.T) {
	raw := erlang.Raw(`{{ range ls "endpoints" }}"{{ .Value }}"{{ end }}`)
	out := erlang.Format(erlang.KV("servers", erlang.List{raw}))
	if !strings.Contains(out, string(raw)) {
		t.Errorf("raw term was altered: %s", out)
	}
}
