package audit

import (
	"bytes"
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Response is the flat audit result. Keys keep the position of their first assignment and the
// value of their last one; a key whose last assignment was undefined is left out of the JSON.
type Response struct {
	entries []entry
	index   map[string]int
}

type entry struct {
	key     string
	value   any
	defined bool
}

// NewResponse returns an empty Response.
func NewResponse() *Response {
	return &Response{index: make(map[string]int)}
}

// Set assigns key. Passing defined=false records the key as undefined.
func (r *Response) Set(key string, value any, defined bool) {
	if !defined {
		value = nil
	}
	if i, ok := r.index[key]; ok {
		r.entries[i].value = value
		r.entries[i].defined = defined
		return
	}
	r.index[key] = len(r.entries)
	r.entries = append(r.entries, entry{key: key, value: value, defined: defined})
}

// Get returns the value of key and whether it is defined.
func (r *Response) Get(key string) (any, bool) {
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}
	e := r.entries[i]
	return e.value, e.defined
}

// Keys returns the defined keys in output order.
func (r *Response) Keys() []string {
	keys := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		if e.defined {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Len returns the number of defined keys.
func (r *Response) Len() int {
	n := 0
	for _, e := range r.entries {
		if e.defined {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the response as a single object in key order. Nested objects copied
// from the report are encoded with sorted keys so the output is byte-for-byte stable.
func (r *Response) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := jsontext.NewEncoder(&buf)
	if err := enc.WriteToken(jsontext.BeginObject); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	for _, e := range r.entries {
		if !e.defined {
			continue
		}
		if err := enc.WriteToken(jsontext.String(e.key)); err != nil {
			return nil, fmt.Errorf("encode key %q: %w", e.key, err)
		}
		if err := json.MarshalEncode(enc, e.value, json.Deterministic(true)); err != nil {
			return nil, fmt.Errorf("encode value for %q: %w", e.key, err)
		}
	}
	if err := enc.WriteToken(jsontext.EndObject); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
