// SPDX-License-Identifier: MIT
package store

import (
	"encoding/binary"
	"math"
	"strconv"
)

// decodeFloat recovers a float64 from whatever representation an older
// writer left in the database: a plain numeric, a little-endian float32
// blob, or decimal text. Returns false for anything unrecognizable.
func decodeFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case []byte:
		if len(x) == 4 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(x))), true
		}
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
