package filter

import (
	"strconv"
	"strings"
)

// absent marks a field that does not exist, as opposed to an explicit null.
type absentValue struct{}

var absent = absentValue{}

func isAbsent(v interface{}) bool {
	_, ok := v.(absentValue)
	return ok
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

// Lookup walks a dot path through nested maps and arrays.
func Lookup(doc map[string]interface{}, path string) (interface{}, bool) {
	v := lookup(doc, splitPath(path))
	if isAbsent(v) {
		return nil, false
	}
	return v, true
}

func lookup(doc map[string]interface{}, path []string) interface{} {
	var cur interface{} = doc
	for _, segment := range path {
		switch node := cur.(type) {
		case map[string]interface{}:
			next, ok := node[segment]
			if !ok {
				return absent
			}
			cur = next
		case []interface{}:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(node) {
				return absent
			}
			cur = node[i]
		default:
			return absent
		}
	}
	return cur
}

// ToNumber coerces numeric values and parseable strings to float64.
func ToNumber(v interface{}) (float64, bool) {
	return toNumber(v)
}
