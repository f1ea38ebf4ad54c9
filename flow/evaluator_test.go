package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolverFromMap(values map[string]any) Resolver {
	return ResolverFunc(func(ref string) (any, bool) {
		v, ok := values[ref]
		return v, ok
	})
}

func TestEval_Comparisons(t *testing.T) {
	r := resolverFromMap(map[string]any{"age": 21.0, "city": "Paris"})

	cases := []struct {
		expr string
		want bool
	}{
		{`age > 18`, true},
		{`age < 18`, false},
		{`age == 21`, true},
		{`city == "Paris"`, true},
		{`city != "Paris"`, false},
		{`age >= 21 and city == "Paris"`, true},
		{`age < 18 or city == "Paris"`, true},
		{`(age < 18 or city == "Paris") and age == 21`, true},
	}
	for _, c := range cases {
		got, err := Eval(c.expr, r)
		require.NoError(t, err, c.expr)
		assert.Equal(t, c.want, got, c.expr)
	}
}

func TestEval_WordBoundaryForAndOr(t *testing.T) {
	r := resolverFromMap(map[string]any{"android": "yes", "oracle": "no"})
	got, err := Eval(`android == "yes"`, r)
	require.NoError(t, err)
	assert.True(t, got, "identifier containing 'and' must not be split by the and-operator")
}

func TestEval_NullReference(t *testing.T) {
	r := resolverFromMap(map[string]any{})
	got, err := Eval(`missing == None`, r)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEval_ReMatch(t *testing.T) {
	r := resolverFromMap(map[string]any{"email": "a@example.com"})
	got, err := Eval(`re.match("^[a-z]+@", email)`, r)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Eval(`re.match("^zzz", email)`, r)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEval_ReMatchNullIsFalse(t *testing.T) {
	r := resolverFromMap(map[string]any{})
	got, err := Eval(`re.match("^a", missing)`, r)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestExtractJSON_StrictParse(t *testing.T) {
	got, ok := ExtractJSON(`{"status":"running","data":{"city":"Paris"}}`)
	require.True(t, ok)
	assert.Equal(t, "running", got["status"])
}

func TestExtractJSON_BraceMatchScan(t *testing.T) {
	got, ok := ExtractJSON("Sure thing! " + `{"bot":"hi there"}` + " Let me know if you need more.")
	require.True(t, ok)
	assert.Equal(t, "hi there", got["bot"])
}

func TestExtractJSON_Failure(t *testing.T) {
	_, ok := ExtractJSON("just plain text, no JSON here")
	assert.False(t, ok)
}
