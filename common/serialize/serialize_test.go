package serialize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewave/flowrunner/common/nodes"
)

func TestOutput_TimestampsBecomeRFC3339(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	got := Output(nodes.MapOutput{
		"at":      ts,
		"maybeAt": &ts,
		"noAt":    (*time.Time)(nil),
	})

	assert.Equal(t, "2026-03-14T09:26:53Z", got["at"])
	assert.Equal(t, "2026-03-14T09:26:53Z", got["maybeAt"])
	assert.Nil(t, got["noAt"])
}

func TestOutput_SetsBecomeSortedSlices(t *testing.T) {
	got := Output(nodes.MapOutput{
		"blocked": nodes.NewStringSet("c", "a", "b"),
		"other":   map[string]struct{}{"y": {}, "x": {}},
	})

	assert.Equal(t, []string{"a", "b", "c"}, got["blocked"])
	assert.Equal(t, []string{"x", "y"}, got["other"])
}

func TestOutput_WalksNestedStructures(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := Output(nodes.MapOutput{
		"nested": map[string]any{
			"at":    ts,
			"items": []any{ts, "plain"},
		},
		"ints": []int{2, 1},
	})

	nested, ok := got["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2026-01-02T03:04:05Z", nested["at"])
	items := nested["items"].([]any)
	assert.Equal(t, "2026-01-02T03:04:05Z", items[0])
	assert.Equal(t, "plain", items[1])
	assert.Equal(t, []any{2, 1}, got["ints"])
}

func TestOutput_StringifiesMapKeys(t *testing.T) {
	got := Value(map[int]any{1: "one"})
	assert.Equal(t, map[string]any{"1": "one"}, got)
}

func TestOutput_IdempotentOnJSONSafeValues(t *testing.T) {
	in := map[string]any{
		"s": "str",
		"n": 3.5,
		"b": true,
		"l": []any{"a", 1},
		"m": map[string]any{"k": nil},
	}
	once := Map(in)
	twice := Map(once)
	assert.Equal(t, once, twice)
}

func TestOutput_NilOutput(t *testing.T) {
	assert.Nil(t, Output(nil))
	assert.Nil(t, Map(nil))
}

func TestOutput_HumanInterventionFields(t *testing.T) {
	out := &nodes.HumanInterventionOutput{
		Data:         map[string]any{"doc": "v1"},
		BlockedNodes: nodes.NewStringSet("down"),
	}
	got := Output(out)
	assert.Equal(t, []string{"down"}, got["blocked_nodes"])
	assert.Nil(t, got["resume_time"])
}
