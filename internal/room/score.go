package room

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ParseScore decodes a score from a JSON value. Numbers and numeric strings are
// accepted; anything else, or a value outside [0, 100], is an input error.
func ParseScore(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, invalid("score", "required")
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0, invalid("score", "must be a number")
	}
	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, invalid("score", "must be a number")
		}
		f, err = strconv.ParseFloat(s, 64)
	default:
		return 0, invalid("score", "must be a number")
	}
	if err != nil {
		return 0, invalid("score", "must be a number")
	}
	if err := ValidateScore(f); err != nil {
		return 0, err
	}
	return f, nil
}
