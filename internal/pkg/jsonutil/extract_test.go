package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObject(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"bare", `{"kind":"buy_and_hold"}`, `{"kind":"buy_and_hold"}`, true},
		{"fenced", "Here you go:\n```json\n{\"kind\":\"rule\",\"params\":{\"long\":\"close > 1\"}}\n```\nthanks", `{"kind":"rule","params":{"long":"close > 1"}}`, true},
		{"prose", `The document is {"a":{"b":"}"}} done.`, `{"a":{"b":"}"}}`, true},
		{"escaped quote", `{"s":"a\"}"}`, `{"s":"a\"}"}`, true},
		{"unbalanced", `{"a":1`, "", false},
		{"empty", "  ", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractObject(tc.raw)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompactAndPretty(t *testing.T) {
	out, err := Compact("{ \"a\" : [1, 2] }")
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2]}`, out)

	_, err = Compact("{nope")
	assert.Error(t, err)

	assert.Equal(t, "{\n  \"a\": 1\n}", Pretty(`{"a":1}`))
	assert.Equal(t, "not json", Pretty("not json"))
}
