package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpr(t *testing.T) {
	e, err := ParseExpr("scope == 'git'")
	require.NoError(t, err)
	assert.Equal(t, "scope", e.Variable)
	assert.Equal(t, "==", e.Op)
	assert.Equal(t, "git", e.Value)

	e, err = ParseExpr("count >= 3")
	require.NoError(t, err)
	assert.Equal(t, ">=", e.Op, `">=" must not be read as ">"`)

	e, err = ParseExpr("verbose")
	require.NoError(t, err)
	assert.Empty(t, e.Op)

	for _, bad := range []string{"", "== 3", "x ==", "1x == 2", "a b c"} {
		_, err := ParseExpr(bad)
		assert.Error(t, err, "expected %q to be rejected", bad)
	}
}

func TestExprEvalNumericVersusString(t *testing.T) {
	gt, err := ParseExpr("n > 9")
	require.NoError(t, err)

	// Numeric comparison when both sides parse as numbers: 10 > 9.
	assert.True(t, gt.Eval(map[string]any{"n": 10}))
	assert.True(t, gt.Eval(map[string]any{"n": "10"}))

	// String comparison otherwise: "10" < "9x" lexically.
	gtStr, err := ParseExpr("n > 9x")
	require.NoError(t, err)
	assert.False(t, gtStr.Eval(map[string]any{"n": "10"}))
}

func TestExprEvalTruthiness(t *testing.T) {
	e, err := ParseExpr("flag")
	require.NoError(t, err)

	for _, falsy := range []any{nil, "", "false", "no", "n", "0", "f", false, 0} {
		assert.False(t, e.Eval(map[string]any{"flag": falsy}), "expected %v to be falsy", falsy)
	}
	assert.False(t, e.Eval(map[string]any{}), "missing variable is falsy")

	for _, truthy := range []any{"true", "yes", "1", true, 1, "anything"} {
		assert.True(t, e.Eval(map[string]any{"flag": truthy}), "expected %v to be truthy", truthy)
	}
}

func TestExprEvalOperators(t *testing.T) {
	vars := map[string]any{"v": 5}

	cases := map[string]bool{
		"v == 5": true,
		"v != 5": false,
		"v > 4":  true,
		"v < 4":  false,
		"v >= 5": true,
		"v <= 4": false,
	}
	for expr, want := range cases {
		e, err := ParseExpr(expr)
		require.NoError(t, err)
		assert.Equal(t, want, e.Eval(vars), expr)
	}
}
