// Package jsonutil converts loosely typed JSON values from import files.
package jsonutil

import (
	"fmt"
	"strconv"
)

// ScalarString renders a decoded JSON scalar as a string. Import files mix
// strings, numbers and booleans freely in metadata positions; everything is
// stored as text. Returns false for null and for composite values, which are
// never flattened into metadata.
func ScalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v)), true
		}
		return strconv.FormatFloat(v, 'g', -1, 64), true
	default:
		return "", false
	}
}
