package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	ListPositions   = "positions"
	ListSubstitutes = "substitutes"
)

// MalformedEntry is a list element that could not be parsed. Index is -1 when the
// whole list is unreadable.
type MalformedEntry struct {
	List   string
	Index  int
	Raw    string
	Reason string
}

func isEmptyList(raw string) bool {
	raw = strings.TrimSpace(raw)
	return raw == "" || raw == "null"
}

func parseArray(list, raw string) ([]gjson.Result, *MalformedEntry) {
	if isEmptyList(raw) {
		return nil, nil
	}
	if !gjson.Valid(raw) {
		return nil, &MalformedEntry{List: list, Index: -1, Raw: raw, Reason: "invalid JSON"}
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsArray() {
		return nil, &MalformedEntry{List: list, Index: -1, Raw: raw, Reason: "not a JSON array"}
	}
	return parsed.Array(), nil
}

// ParsePositions reads a stored position list. Elements that fail validation are
// returned separately instead of failing the whole list.
func ParsePositions(raw string) ([]PositionEntry, []MalformedEntry) {
	elems, bad := parseArray(ListPositions, raw)
	if bad != nil {
		return nil, []MalformedEntry{*bad}
	}

	entries := make([]PositionEntry, 0, len(elems))
	var malformed []MalformedEntry
	for i, elem := range elems {
		entry, reason := parsePositionEntry(elem)
		if reason != "" {
			malformed = append(malformed, MalformedEntry{List: ListPositions, Index: i, Raw: elem.Raw, Reason: reason})
			continue
		}
		entry.Index = i
		entries = append(entries, entry)
	}
	return entries, malformed
}

func parsePositionEntry(elem gjson.Result) (PositionEntry, string) {
	if !elem.IsObject() {
		return PositionEntry{}, "entry is not an object"
	}

	playerID := elem.Get("playerId")
	if playerID.Type != gjson.String || playerID.String() == "" {
		return PositionEntry{}, "missing playerId"
	}

	position := elem.Get("position")
	if position.Type != gjson.String {
		return PositionEntry{}, "missing position"
	}

	entry := PositionEntry{
		PlayerID: playerID.String(),
		Position: position.String(),
	}

	switch minutes := elem.Get("minutes"); minutes.Type {
	case gjson.Null:
		// absent or explicit null
	case gjson.Number:
		m := int(minutes.Int())
		if m < 0 {
			return PositionEntry{}, "negative minutes"
		}
		entry.Minutes = &m
	default:
		return PositionEntry{}, "minutes is not a number"
	}

	switch sub := elem.Get("isSubstitute"); sub.Type {
	case gjson.Null:
	case gjson.True, gjson.False:
		entry.IsSubstitute = sub.Bool()
	default:
		return PositionEntry{}, "isSubstitute is not a boolean"
	}

	return entry, ""
}

// ParseSubstitutes accepts bare player id strings or objects carrying playerId.
func ParseSubstitutes(raw string) ([]SubstituteEntry, []MalformedEntry) {
	elems, bad := parseArray(ListSubstitutes, raw)
	if bad != nil {
		return nil, []MalformedEntry{*bad}
	}

	subs := make([]SubstituteEntry, 0, len(elems))
	var malformed []MalformedEntry
	for i, elem := range elems {
		id := entryPlayerID(elem)
		if id == "" {
			malformed = append(malformed, MalformedEntry{List: ListSubstitutes, Index: i, Raw: elem.Raw, Reason: "missing playerId"})
			continue
		}
		subs = append(subs, SubstituteEntry{PlayerID: id, Index: i})
	}
	return subs, malformed
}

func entryPlayerID(elem gjson.Result) string {
	switch {
	case elem.Type == gjson.String:
		return elem.String()
	case elem.IsObject():
		if id := elem.Get("playerId"); id.Type == gjson.String {
			return id.String()
		}
	}
	return ""
}

// RemovePlayers deletes every element referencing one of playerIDs, matching by id
// rather than by index. Elements it does not touch keep their stored form.
func RemovePlayers(raw string, playerIDs map[string]struct{}) (string, int, error) {
	if isEmptyList(raw) || len(playerIDs) == 0 {
		return raw, 0, nil
	}
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsArray() {
		return raw, 0, fmt.Errorf("list is not a JSON array")
	}

	elems := gjson.Parse(raw).Array()
	out := raw
	removed := 0
	for i := len(elems) - 1; i >= 0; i-- {
		if _, ok := playerIDs[entryPlayerID(elems[i])]; !ok {
			continue
		}
		var err error
		out, err = sjson.Delete(out, strconv.Itoa(i))
		if err != nil {
			return raw, 0, fmt.Errorf("failed to delete element %d: %w", i, err)
		}
		removed++
	}
	return out, removed, nil
}
