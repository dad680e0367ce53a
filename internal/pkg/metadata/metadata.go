// Package metadata stores open-ended attachments on ledger rows as JSONB.
package metadata

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata is a string-keyed bag of JSON values.
type Metadata map[string]any

// Value implements driver.Valuer. A nil map is stored as an empty object.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("metadata: marshal: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
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
			return fmt.Errorf("metadata: unmarshal: %w", err)
		}
	}
	*m = out
	return nil
}

// String returns the string value under key, or "".
func (m Metadata) String(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
