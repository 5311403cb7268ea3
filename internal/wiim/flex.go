package wiim

import (
	"bytes"
	"fmt"
	"strconv"
)

// LinkPlay firmwares are inconsistent about JSON types: numeric fields are
// sometimes emitted as bare numbers and sometimes as quoted strings,
// depending on firmware generation. flexInt accepts both.
type flexInt struct {
	value int
	set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("%w: not an integer: %q", ErrParse, string(data))
	}
	f.value = v
	f.set = true
	return nil
}

// Int returns the decoded value, or def when the field was absent.
func (f flexInt) Int(def int) int {
	if !f.set {
		return def
	}
	return f.value
}

// Bool interprets the LinkPlay 0/1 integer convention.
func (f flexInt) Bool() bool {
	return f.set && f.value != 0
}

// Present reports whether the field appeared in the payload.
func (f flexInt) Present() bool {
	return f.set
}
