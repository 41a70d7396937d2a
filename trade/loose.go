package trade

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// Loose is a JSON scalar that may be encoded as a string, a number, a bool
// or null. It keeps the raw text; null and empty strings decode to "".
type Loose string

func (l *Loose) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = ""
		return nil
	}
	if trimmed[0] == '"' {
		s, err := strconv.Unquote(string(trimmed))
		if err != nil {
			return err
		}
		*l = Loose(strings.TrimSpace(s))
		return nil
	}
	*l = Loose(trimmed)
	return nil
}

func (l Loose) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(l))), nil
}

func (l Loose) String() string {
	return string(l)
}

// Int64 parses the value as an integer. Float text such as "1.7e12" is
// truncated.
func (l Loose) Int64() (int64, bool) {
	s := strings.TrimSpace(string(l))
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || f >= maxInt64Float || f < -maxInt64Float {
		return 0, false
	}
	return int64(f), true
}

// maxInt64Float is 2^63, the first float64 past math.MaxInt64.
const maxInt64Float = float64(1 << 63)
