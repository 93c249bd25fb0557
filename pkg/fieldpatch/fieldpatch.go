// Package fieldpatch turns a partial JSON object into a column/value list
// for an UPDATE statement. Only keys named by the caller's field
// definitions are considered; a key that is present sets its column, a
// JSON null clears it, and an absent key leaves it untouched.
package fieldpatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sanitas/hce/pkg/civil"
)

// Type is the value type of a column.
type Type int

const (
	Text Type = iota
	Date
	Int
	Bool
)

// Field maps a JSON key to a column.
type Field struct {
	Key      string
	Column   string
	Type     Type
	Required bool
}

// Patch is an ordered set of column assignments.
type Patch struct {
	cols []string
	vals []any
}

// Parse builds a Patch from a JSON object. The result follows the order of
// fields, not the order of the body.
func Parse(body []byte, fields []Field) (Patch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Patch{}, fmt.Errorf("body must be a JSON object")
	}

	var p Patch
	for _, f := range fields {
		msg, ok := raw[f.Key]
		if !ok {
			continue
		}
		v, err := decode(f, msg)
		if err != nil {
			return Patch{}, err
		}
		p.Set(f.Column, v)
	}
	return p, nil
}

func decode(f Field, msg json.RawMessage) (any, error) {
	if bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
		if f.Required {
			return nil, fmt.Errorf("%s cannot be empty", f.Key)
		}
		return nil, nil
	}

	switch f.Type {
	case Text:
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, fmt.Errorf("%s must be a string", f.Key)
		}
		if f.Required && strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%s cannot be empty", f.Key)
		}
		return s, nil

	case Date:
		var d civil.Date
		if err := json.Unmarshal(msg, &d); err != nil {
			return nil, fmt.Errorf("%s: %v", f.Key, err)
		}
		if f.Required && !d.Valid {
			return nil, fmt.Errorf("%s cannot be empty", f.Key)
		}
		return d, nil

	case Int:
		var n int64
		if err := json.Unmarshal(msg, &n); err == nil {
			return n, nil
		}
		// Form clients send numbers as strings.
		var s string
		if err := json.Unmarshal(msg, &s); err == nil {
			s = strings.TrimSpace(s)
			if s == "" && !f.Required {
				return nil, nil
			}
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, nil
			}
		}
		return nil, fmt.Errorf("%s must be an integer", f.Key)

	case Bool:
		var b bool
		if err := json.Unmarshal(msg, &b); err != nil {
			return nil, fmt.Errorf("%s must be a boolean", f.Key)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%s: unsupported field type", f.Key)
}

// Set assigns v to column, replacing an earlier assignment.
func (p *Patch) Set(column string, v any) {
	for i, c := range p.cols {
		if c == column {
			p.vals[i] = v
			return
		}
	}
	p.cols = append(p.cols, column)
	p.vals = append(p.vals, v)
}

// Get returns the value assigned to column.
func (p Patch) Get(column string) (any, bool) {
	for i, c := range p.cols {
		if c == column {
			return p.vals[i], true
		}
	}
	return nil, false
}

func (p Patch) Empty() bool { return len(p.cols) == 0 }

func (p Patch) Len() int { return len(p.cols) }

func (p Patch) Columns() []string { return append([]string(nil), p.cols...) }

// SetClause renders "col = $n, ..." with placeholders numbered from start,
// and returns the matching arguments.
func (p Patch) SetClause(start int) (string, []any) {
	parts := make([]string, len(p.cols))
	for i, c := range p.cols {
		parts[i] = fmt.Sprintf("%s = $%d", c, start+i)
	}
	return strings.Join(parts, ", "), append([]any(nil), p.vals...)
}
