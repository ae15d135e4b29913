package knowledge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Tri is a three-valued boolean: a fact can be confirmed, denied or not known yet.
type Tri int8

const (
	Unknown Tri = iota
	True
	False
)

// TriOf converts a plain bool into a known Tri.
func TriOf(b bool) Tri {
	if b {
		return True
	}
	return False
}

// Known reports whether the value is True or False.
func (t Tri) Known() bool {
	return t == True || t == False
}

// Bool returns the value and whether it is known.
func (t Tri) Bool() (value, ok bool) {
	return t == True, t.Known()
}

func (t Tri) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes Unknown as null.
func (t Tri) MarshalJSON() ([]byte, error) {
	switch t {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (t *Tri) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = Unknown
		return nil
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	parsed, err := ParseTri(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTri accepts the loose shapes models tend to produce for a yes/no answer.
func ParseTri(v any) (Tri, error) {
	switch val := v.(type) {
	case nil:
		return Unknown, nil
	case Tri:
		return val, nil
	case bool:
		return TriOf(val), nil
	case float64:
		return TriOf(val != 0), nil
	case int:
		return TriOf(val != 0), nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "y", "1":
			return True, nil
		case "false", "no", "n", "0":
			return False, nil
		case "", "null", "none", "unknown", "n/a":
			return Unknown, nil
		}
		return Unknown, fmt.Errorf("cannot interpret %q as a boolean", val)
	default:
		return Unknown, fmt.Errorf("cannot interpret %T as a boolean", v)
	}
}
