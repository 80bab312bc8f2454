package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata limits for the opaque invitation envelope.
const (
	MaxMetadataBytes = 16 << 10
	MaxMetadataDepth = 8
)

// Metadata is opaque tenant-supplied JSON attached to an invitation.
type Metadata map[string]any

// Validate checks encoded size and nesting depth. Content is not inspected.
func (m Metadata) Validate() error {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return NewValidationError("metadata", "must be JSON-encodable")
	}
	if len(raw) > MaxMetadataBytes {
		return NewValidationError("metadata", fmt.Sprintf("must be at most %d bytes when encoded", MaxMetadataBytes))
	}
	if depth(map[string]any(m)) > MaxMetadataDepth {
		return NewValidationError("metadata", fmt.Sprintf("must be nested at most %d levels deep", MaxMetadataDepth))
	}
	return nil
}

func depth(v any) int {
	switch t := v.(type) {
	case map[string]any:
		max := 0
		for _, c := range t {
			if d := depth(c); d > max {
				max = d
			}
		}
		return max + 1
	case Metadata:
		return depth(map[string]any(t))
	case []any:
		max := 0
		for _, c := range t {
			if d := depth(c); d > max {
				max = d
			}
		}
		return max + 1
	default:
		return 0
	}
}

// Value implements driver.Valuer so Metadata can be written to a jsonb column.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for jsonb columns.
func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported scan type %T", src)
	}
	out := Metadata{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
	}
	*m = out
	return nil
}
