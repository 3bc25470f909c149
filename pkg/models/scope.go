package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
)

// Scope narrows a trigger mapping to one workflow or stage. The zero value is
// the wildcard: it matches every workflow/stage.
type Scope struct {
	id  int64
	set bool
}

// AnyScope returns the wildcard scope.
func AnyScope() Scope {
	return Scope{}
}

// ExactScope returns a scope bound to a single id.
func ExactScope(id int64) Scope {
	return Scope{id: id, set: true}
}

// IsAny reports whether the scope is the wildcard.
func (s Scope) IsAny() bool {
	return !s.set
}

// ID returns the bound id and whether the scope is bound at all.
func (s Scope) ID() (int64, bool) {
	return s.id, s.set
}

// Matches reports whether a mapping scoped by s fires for an event carrying
// the given scope. A wildcard mapping matches any event; a bound mapping only
// matches an event bound to the same id.
func (s Scope) Matches(event Scope) bool {
	if !s.set {
		return true
	}

	return event.set && event.id == s.id
}

func (s Scope) String() string {
	if !s.set {
		return "*"
	}

	return strconv.FormatInt(s.id, 10)
}

// MarshalJSON encodes the wildcard as null and a bound scope as its id.
func (s Scope) MarshalJSON() ([]byte, error) {
	if !s.set {
		return []byte("null"), nil
	}

	return []byte(strconv.FormatInt(s.id, 10)), nil
}

// UnmarshalJSON accepts null or an integer.
func (s *Scope) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = AnyScope()

		return nil
	}

	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("scope must be null or an integer: %w", err)
	}

	*s = ExactScope(id)

	return nil
}

// Value implements driver.Valuer so a scope is stored as a nullable BIGINT.
func (s Scope) Value() (driver.Value, error) {
	if !s.set {
		return nil, nil
	}

	return s.id, nil
}

// Scan implements sql.Scanner.
func (s *Scope) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = AnyScope()
	case int64:
		*s = ExactScope(v)
	case int32:
		*s = ExactScope(int64(v))
	case []byte:
		id, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("failed to scan scope: %w", err)
		}

		*s = ExactScope(id)
	default:
		return fmt.Errorf("unsupported scope source type %T", src)
	}

	return nil
}
