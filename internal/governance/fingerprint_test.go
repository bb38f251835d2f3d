package governance

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSONSortsKeys(t *testing.T) {
	raw, err := CanonicalJSON(map[string]any{"zulu": 1, "alpha": 2, "mike": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mike":3,"zulu":1}`, string(raw))
}

func TestCanonicalJSONNormalizesStructs(t *testing.T) {
	type ba struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	fromStruct, err := CanonicalJSON(ba{B: 2, A: 1})
	require.NoError(t, err)
	fromMap, err := CanonicalJSON(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, fromMap, fromStruct)
}

func TestFingerprintStableAcrossKeyOrder(t *testing.T) {
	a, err := Fingerprint(CriticLeakage, "add_to_blocklist", map[string]any{"column": "sp", "mode": "strict"})
	require.NoError(t, err)
	b, err := Fingerprint(CriticLeakage, "add_to_blocklist", map[string]any{"mode": "strict", "column": "sp"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintSeparatesFields(t *testing.T) {
	base, err := Fingerprint(CriticBias, "anchoring", map[string]any{"x": 1})
	require.NoError(t, err)

	otherCritic, err := Fingerprint(CriticFeature, "anchoring", map[string]any{"x": 1})
	require.NoError(t, err)
	otherFinding, err := Fingerprint(CriticBias, "recency", map[string]any{"x": 1})
	require.NoError(t, err)
	otherChange, err := Fingerprint(CriticBias, "anchoring", map[string]any{"x": 2})
	require.NoError(t, err)

	assert.NotEqual(t, base, otherCritic)
	assert.NotEqual(t, base, otherFinding)
	assert.NotEqual(t, base, otherChange)

	// The null separator keeps field boundaries unambiguous.
	ab, err := Fingerprint(CriticBias, "ab", map[string]any{})
	require.NoError(t, err)
	ba, err := Fingerprint(CriticType("BIASa"), "b", map[string]any{})
	require.NoError(t, err)
	assert.NotEqual(t, ab, ba)
}

func TestContextHashLengthAndStability(t *testing.T) {
	ctx := map[string]any{"race_id": "ASC-1430", "field_size": 8}
	h1, err := ContextHash(ctx)
	require.NoError(t, err)
	h2, err := ContextHash(map[string]any{"field_size": 8, "race_id": "ASC-1430"})
	require.NoError(t, err)

	assert.Len(t, h1, 16)
	assert.Equal(t, h1, h2)
}

func TestArtifactChecksum(t *testing.T) {
	content := json.RawMessage(`{"k":"v"}`)
	sum := ArtifactChecksum(content)
	assert.Len(t, sum, 64)
	assert.Equal(t, sum, ArtifactChecksum(content))
	assert.NotEqual(t, sum, ArtifactChecksum(json.RawMessage(`{"k":"w"}`)))
}
