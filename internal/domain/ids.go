package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NodeID graph node identifier.
// The diagram export mixes numeric ids ("id": 3) with string ids ("node": "3");
// every decode goes through this type so comparisons are plain string equality.
type NodeID string

func (id NodeID) String() string { return string(id) }

func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

func (id *NodeID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = NormalizeNodeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("node id: %w", err)
	}
	*id = NormalizeNodeID(n.String())
	return nil
}

// NormalizeNodeID trims whitespace and collapses integral numerals ("3.0", "03") to their canonical form.
func NormalizeNodeID(s string) NodeID {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		return NodeID(strconv.FormatInt(int64(f), 10))
	}
	return NodeID(s)
}
