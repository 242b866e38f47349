package backend

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number is a stats counter or gauge as the platform reports it. Decoding
// is lenient: JSON numbers and numeric strings keep their value; null,
// booleans, objects, arrays and anything unparsable decode as 0.
type Number float64

// UnmarshalJSON implements json.Unmarshaler. It never fails, so one odd
// field cannot drop a whole stats response.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	var text string
	switch c := data[0]; {
	case c == '"':
		if json.Unmarshal(data, &text) != nil {
			return nil
		}
		text = strings.TrimSpace(text)
	case c == '-' || (c >= '0' && c <= '9'):
		text = string(data)
	default:
		return nil
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	*n = Number(f)
	return nil
}
