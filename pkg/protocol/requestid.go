package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is a JSON-RPC request id: a string or an integer. The zero value
// is the absent id (used only while decoding; requests on the wire always
// carry one). RequestID is comparable and usable as a map key.
type RequestID struct {
	str   string
	num   int64
	isNum bool
	set   bool
}

// StringID creates a string-typed request id.
func StringID(s string) RequestID {
	return RequestID{str: s, set: true}
}

// Int64ID creates an integer-typed request id.
func Int64ID(n int64) RequestID {
	return RequestID{num: n, isNum: true, set: true}
}

// Int64 returns the numeric value of an integer-typed id. The second return
// is false for string-typed or absent ids.
func (id RequestID) Int64() (int64, bool) {
	if !id.set || !id.isNum {
		return 0, false
	}
	return id.num, true
}

// IsZero reports whether the id is absent.
func (id RequestID) IsZero() bool {
	return !id.set
}

// String returns the wire-equivalent textual form of the id.
func (id RequestID) String() string {
	if !id.set {
		return ""
	}
	if id.isNum {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// MarshalJSON implements json.Marshaler.
func (id RequestID) MarshalJSON() ([]byte, error) {
	if !id.set {
		return []byte("null"), nil
	}
	if id.isNum {
		return json.Marshal(id.num)
	}
	return json.Marshal(id.str)
}

// UnmarshalJSON implements json.Unmarshaler. Ids must be strings or integers;
// null and fractional numbers are rejected.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	var num int64
	if err := json.Unmarshal(data, &num); err == nil {
		*id = Int64ID(num)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*id = StringID(str)
		return nil
	}

	return fmt.Errorf("request id must be a string or integer, got %s", string(data))
}
