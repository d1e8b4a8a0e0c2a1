package jsonutil

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// FlexibleString renders a decoded JSON value as display text. Generated
// answers often put numbers or booleans where a string is expected, so
// "employees": 5000 and "employees": "5000" both read as "5000". Composite
// values come back as compact JSON.
func FlexibleString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.RawMessage:
		return FlexibleString(decodeRaw(val))
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

func decodeRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	if _, composite := v.(map[string]any); composite {
		return string(raw)
	}
	return v
}
