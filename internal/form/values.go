package form

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Values maps field keys to the string form of their value. Booleans and
// numbers are stored in their string representation.
type Values map[string]string

// Get returns the value for key, or "" when absent.
func (v Values) Get(key string) string {
	return v[key]
}

// Clone returns an independent copy of v.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// GroupKey builds the value key of a repeating-group child in row index.
func GroupKey(groupID string, index int, childID string) string {
	return fmt.Sprintf("%s[%d].%s", groupID, index, childID)
}

// ParseGroupKey splits a key built by GroupKey.
func ParseGroupKey(key string) (groupID string, index int, childID string, ok bool) {
	open := strings.IndexByte(key, '[')
	if open <= 0 {
		return "", 0, "", false
	}
	rest := key[open+1:]
	closeIdx := strings.Index(rest, "].")
	if closeIdx <= 0 {
		return "", 0, "", false
	}
	n, err := strconv.Atoi(rest[:closeIdx])
	if err != nil || n < 0 {
		return "", 0, "", false
	}
	child := rest[closeIdx+2:]
	if child == "" {
		return "", 0, "", false
	}
	return key[:open], n, child, true
}

// GroupRows returns the sorted distinct row indices present for groupID.
func GroupRows(v Values, groupID string) []int {
	seen := make(map[int]struct{})
	for k := range v {
		g, idx, _, ok := ParseGroupKey(k)
		if ok && g == groupID {
			seen[idx] = struct{}{}
		}
	}
	rows := make([]int, 0, len(seen))
	for idx := range seen {
		rows = append(rows, idx)
	}
	sort.Ints(rows)
	return rows
}

// GroupRowCount returns the number of rows present for groupID.
func GroupRowCount(v Values, groupID string) int {
	return len(GroupRows(v, groupID))
}

// BelongsTo reports whether key is the value key of element id, either the id
// itself or a row key of a repeating group with that id.
func BelongsTo(key, id string) bool {
	if key == id {
		return true
	}
	g, _, _, ok := ParseGroupKey(key)
	return ok && g == id
}
