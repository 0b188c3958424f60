package database

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Vector is a pgvector column in its text form "[0.1,0.2,...]". A nil
// Vector is SQL NULL.
type Vector []float32

func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return v.String(), nil
}

func (v Vector) String() string {
	var b strings.Builder
	b.Grow(len(v) * 8)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func (v *Vector) Scan(src any) error {
	var text string
	switch s := src.(type) {
	case nil:
		*v = nil
		return nil
	case []byte:
		text = string(s)
	case string:
		text = s
	default:
		return fmt.Errorf("Vector.Scan: expected text, got %T", src)
	}

	parsed, err := ParseVector(text)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVector parses the pgvector text representation
func ParseVector(text string) (Vector, error) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || text[0] != '[' || text[len(text)-1] != ']' {
		return nil, fmt.Errorf("invalid vector literal %q", text)
	}
	body := strings.TrimSpace(text[1 : len(text)-1])
	if body == "" {
		return Vector{}, nil
	}

	parts := strings.Split(body, ",")
	out := make(Vector, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector element %q: %w", part, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
