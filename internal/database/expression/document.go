// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package expression

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// E is a single key/value entry of an ordered document
type E struct {
	Key   string
	Value interface{}
}

// D is an ordered document. Use D instead of a map when the order of
// the produced expressions matters.
type D []E

// Get returns the value stored under key
func (d D) Get(key string) (interface{}, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Map converts the document, and any nested documents, to plain maps
func (d D) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(d))
	for _, e := range d {
		m[e.Key] = plain(e.Value)
	}
	return m
}

func plain(v interface{}) interface{} {
	switch t := v.(type) {
	case D:
		return t.Map()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = plain(item)
		}
		return out
	}
	return v
}

// ToDocument converts the supported object shapes to an ordered document.
// Plain maps are ordered by key.
func ToDocument(v interface{}) (D, bool) {
	switch t := v.(type) {
	case D:
		return t, true
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		doc := make(D, 0, len(t))
		for _, k := range keys {
			doc = append(doc, E{Key: k, Value: t[k]})
		}
		return doc, true
	case map[string]string:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = val
		}
		return ToDocument(m)
	}
	return nil, false
}

// toList converts the supported array shapes to a slice of values
func toList(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	case []D:
		out := make([]interface{}, len(t))
		for i, d := range t {
			out[i] = d
		}
		return out, true
	}
	return nil, false
}

// DecodeJSON decodes a JSON text keeping object key order. Objects become D,
// integral numbers int64 and other numbers float64.
func DecodeJSON(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			doc := D{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T, not string", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				doc = append(doc, E{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return doc, nil
		case '[':
			arr := []interface{}{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		return number(t)
	default:
		return t, nil
	}
}

func number(n json.Number) (interface{}, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	return n.Float64()
}
