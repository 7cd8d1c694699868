package transformer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/mesh-trans/config"
	"github.com/eddielth/mesh-trans/nodes"
)

const rangeTestScript = `
function transform(msg) {
	if (msg.payload.distance === undefined) {
		return null;
	}
	log("range test from " + msg.node);
	return {
		category: "range",
		fields: {
			distance: msg.payload.distance / 1000,
			temp_f: convertTemperature(msg.payload.temp, "C", "F"),
			label: msg.node
		}
	};
}
`

func TestScriptManagerRun(t *testing.T) {
	sm, err := NewScriptManager(map[string]config.Script{
		"range_test": {ScriptCode: rangeTestScript},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"range_test"}, sm.Types())

	c := newTestClassifier(WithScripts(sm))
	env, err := DecodeEnvelope([]byte(`{"from":12345678,"type":"range_test","payload":{"distance":2500,"temp":100}}`))
	require.NoError(t, err)
	rec := requireSingle(t, c.Classify(env.Message()), "range")
	assert.Equal(t, "gateway_range", rec.Measurement)
	assert.Equal(t, map[string]float64{"distance": 2.5, "temp_f": 212}, rec.Fields)

	requireInvalid(t, c.Classify(Message{From: 1, Type: "range_test", Payload: map[string]any{}}))
	requireInvalid(t, c.Classify(Message{From: 1, Type: "other", Payload: map[string]any{"distance": 1.0}}))
}

func TestScriptsNeverSeeBuiltinTypes(t *testing.T) {
	_, err := NewScriptManager(map[string]config.Script{
		TypeNodeInfo: {ScriptCode: "function transform(msg) { return {category: 'x', fields: {a: 1}}; }"},
	})
	assert.Error(t, err)

	sm, err := NewScriptManager(nil)
	require.NoError(t, err)
	assert.Error(t, sm.Reload(TypeTelemetry, config.Script{ScriptCode: "function transform(msg) { return null; }"}))
}

func TestScriptErrorsAreDiscarded(t *testing.T) {
	sm, err := NewScriptManager(map[string]config.Script{
		"throws":     {ScriptCode: "function transform(msg) { throw new Error('bad'); }"},
		"nocategory": {ScriptCode: "function transform(msg) { return {fields: {a: 1}}; }"},
		"scalar":     {ScriptCode: "function transform(msg) { return 5; }"},
	})
	require.NoError(t, err)

	c := NewClassifier(nodes.NewDirectory(nil), WithScripts(sm))
	for _, typ := range []string{"throws", "nocategory", "scalar"} {
		assert.False(t, c.Classify(Message{From: 1, Type: typ}).Valid, typ)
	}
}

func TestScriptLoadErrors(t *testing.T) {
	cases := map[string]config.Script{
		"empty":        {},
		"syntax":       {ScriptCode: "function transform( {"},
		"no transform": {ScriptCode: "var x = 1;"},
		"not function": {ScriptCode: "var transform = 1;"},
		"missing file": {ScriptPath: filepath.Join(t.TempDir(), "missing.js")},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewScriptManager(map[string]config.Script{"custom": cfg})
			assert.Error(t, err)
		})
	}
}

func TestScriptReloadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.js")
	require.NoError(t, os.WriteFile(path, []byte("function transform(msg) { return {category: 'custom', fields: {v: 1}}; }"), 0644))

	sm, err := NewScriptManager(map[string]config.Script{"custom": {ScriptPath: path}})
	require.NoError(t, err)

	cat, fields := sm.Run(Message{Type: "custom"}, "node_1")
	assert.Equal(t, "custom", cat)
	assert.Equal(t, map[string]float64{"v": 1}, fields)

	require.NoError(t, sm.Reload("custom", config.Script{ScriptCode: "function transform(msg) { return {category: 'custom', fields: {v: 2}}; }"}))
	_, fields = sm.Run(Message{Type: "custom"}, "node_1")
	assert.Equal(t, map[string]float64{"v": 2}, fields)

	assert.Error(t, sm.Reload("custom", config.Script{}))
	_, fields = sm.Run(Message{Type: "custom"}, "node_1")
	assert.Equal(t, map[string]float64{"v": 2}, fields)
}

func TestNilScriptManagerRun(t *testing.T) {
	var sm *ScriptManager
	cat, fields := sm.Run(Message{Type: "x"}, "n")
	assert.Empty(t, cat)
	assert.Nil(t, fields)
}
