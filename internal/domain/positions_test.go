package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParsePositions_ValidEntries(t *testing.T) {
	raw := `[
		{"playerId":"P1","position":"CB","minutes":90},
		{"playerId":"P2","position":"ST","isSubstitute":true},
		{"playerId":"P3","position":"GK","minutes":null,"extra":"kept"}
	]`

	entries, malformed := ParsePositions(raw)
	require.Empty(t, malformed)
	require.Len(t, entries, 3)

	assert.Equal(t, "P1", entries[0].PlayerID)
	assert.Equal(t, "CB", entries[0].Position)
	require.NotNil(t, entries[0].Minutes)
	assert.Equal(t, 90, *entries[0].Minutes)
	assert.False(t, entries[0].IsSubstitute)

	assert.True(t, entries[1].IsSubstitute)
	assert.Nil(t, entries[1].Minutes)
	assert.Equal(t, 1, entries[1].Index)

	assert.Nil(t, entries[2].Minutes)
	assert.Equal(t, 2, entries[2].Index)
}

func TestParsePositions_QuarantinesBadElements(t *testing.T) {
	raw := `[
		"P9",
		{"position":"CB"},
		{"playerId":"P1","position":"CB","minutes":"ninety"},
		{"playerId":"P2","position":"CM","minutes":-3},
		{"playerId":"P3","position":"LB","isSubstitute":"yes"},
		{"playerId":"P4","position":"RB","minutes":45}
	]`

	entries, malformed := ParsePositions(raw)
	require.Len(t, entries, 1)
	assert.Equal(t, "P4", entries[0].PlayerID)
	assert.Equal(t, 5, entries[0].Index)

	require.Len(t, malformed, 5)
	reasons := make([]string, len(malformed))
	for i, m := range malformed {
		assert.Equal(t, ListPositions, m.List)
		assert.Equal(t, i, m.Index)
		reasons[i] = m.Reason
	}
	assert.Equal(t, []string{
		"entry is not an object",
		"missing playerId",
		"minutes is not a number",
		"negative minutes",
		"isSubstitute is not a boolean",
	}, reasons)
}

func TestParsePositions_WholeListUnreadable(t *testing.T) {
	for _, raw := range []string{`{"playerId":"P1"}`, `[{"playerId":`} {
		entries, malformed := ParsePositions(raw)
		assert.Empty(t, entries)
		require.Len(t, malformed, 1)
		assert.Equal(t, -1, malformed[0].Index)
	}

	entries, malformed := ParsePositions("")
	assert.Empty(t, entries)
	assert.Empty(t, malformed)

	entries, malformed = ParsePositions("null")
	assert.Empty(t, entries)
	assert.Empty(t, malformed)
}

func TestParseSubstitutes(t *testing.T) {
	subs, malformed := ParseSubstitutes(`["P1", {"playerId":"P2"}, 7, {"name":"x"}]`)
	assert.Equal(t, []SubstituteEntry{{PlayerID: "P1", Index: 0}, {PlayerID: "P2", Index: 1}}, subs)
	require.Len(t, malformed, 2)
	assert.Equal(t, 2, malformed[0].Index)
	assert.Equal(t, 3, malformed[1].Index)
	assert.Equal(t, ListSubstitutes, malformed[0].List)
}

func TestRemovePlayers(t *testing.T) {
	raw := `[{"playerId":"P1","position":"CB"},{"playerId":"GONE","position":"ST"},{"playerId":"P2","position":"GK","note":"x"},{"playerId":"GONE","position":"LB"}]`

	out, removed, err := RemovePlayers(raw, map[string]struct{}{"GONE": {}})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	elems := gjson.Parse(out).Array()
	require.Len(t, elems, 2)
	assert.Equal(t, "P1", elems[0].Get("playerId").String())
	assert.Equal(t, "P2", elems[1].Get("playerId").String())
	assert.Equal(t, "x", elems[1].Get("note").String())
}

func TestRemovePlayers_SubstituteStrings(t *testing.T) {
	out, removed, err := RemovePlayers(`["P1","GONE","P2"]`, map[string]struct{}{"GONE": {}})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	subs, malformed := ParseSubstitutes(out)
	assert.Empty(t, malformed)
	assert.Equal(t, []SubstituteEntry{{PlayerID: "P1", Index: 0}, {PlayerID: "P2", Index: 1}}, subs)
}

func TestRemovePlayers_NothingToRemove(t *testing.T) {
	raw := `["P1"]`
	out, removed, err := RemovePlayers(raw, map[string]struct{}{"GONE": {}})
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, raw, out)

	_, _, err = RemovePlayers(`{"a":1}`, map[string]struct{}{"GONE": {}})
	assert.Error(t, err)
}
