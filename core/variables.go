package core

import (
	"encoding/json"

	"github.com/spf13/cast"
)

// Variables carry data between steps and to and from the caller. Values have to be JSON serializable;
// after a round trip through a store numbers come back as float64, so use the typed accessors.
type Variables map[string]any

func (v Variables) Has(key string) bool {
	_, ok := v[key]
	return ok
}

func (v Variables) String(key string) string {
	return cast.ToString(v[key])
}

func (v Variables) Bool(key string) bool {
	return cast.ToBool(v[key])
}

func (v Variables) Int(key string) int {
	return cast.ToInt(v[key])
}

// Clone returns a deep copy, going through JSON for nested values.
func (v Variables) Clone() Variables {
	if v == nil {
		return nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		// Not serializable, fall back to a shallow copy
		c := make(Variables, len(v))
		for k, val := range v {
			c[k] = val
		}
		return c
	}

	var c Variables
	if err := json.Unmarshal(b, &c); err != nil {
		panic(err)
	}

	return c
}
