package replica

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
)

// FieldKind is the wire type of a replicated field
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldUUID
	FieldTime
)

// Field maps a wire field onto a replica column
type Field struct {
	Column string
	Kind   FieldKind
	MaxLen int
}

// Schema whitelists the fields of one replicated entity
type Schema struct {
	Entity string
	Table  string
	Fields map[string]Field
}

// BranchSchema describes branch.updated payloads
var BranchSchema = Schema{
	Entity: "branch",
	Table:  BranchReplica{}.TableName(),
	Fields: map[string]Field{
		"code":       {Column: "code", Kind: FieldText, MaxLen: 50},
		"name":       {Column: "name", Kind: FieldText, MaxLen: 200},
		"address":    {Column: "address", Kind: FieldText, MaxLen: 500},
		"phone":      {Column: "phone", Kind: FieldText, MaxLen: 50},
		"status":     {Column: "status", Kind: FieldText, MaxLen: 20},
		"manager_id": {Column: "manager_id", Kind: FieldUUID},
	},
}

// EmployeeSchema describes employee.updated payloads
var EmployeeSchema = Schema{
	Entity: "employee",
	Table:  EmployeeReplica{}.TableName(),
	Fields: map[string]Field{
		"full_name": {Column: "full_name", Kind: FieldText, MaxLen: 200},
		"email":     {Column: "email", Kind: FieldText, MaxLen: 200},
		"phone":     {Column: "phone", Kind: FieldText, MaxLen: 50},
		"position":  {Column: "position", Kind: FieldText, MaxLen: 100},
		"branch_id": {Column: "branch_id", Kind: FieldUUID},
		"status":    {Column: "status", Kind: FieldText, MaxLen: 20},
		"hired_at":  {Column: "hired_at", Kind: FieldTime},
	},
}

// ChangeSet is the column-level form of a partial update. Values holds only
// the present fields; a nil value is an explicit NULL.
type ChangeSet struct {
	EntityID uuid.UUID
	Values   map[string]any
	// Ignored lists wire fields the schema does not know
	Ignored []string
}

// IsEmpty reports whether the change set writes nothing
func (c ChangeSet) IsEmpty() bool {
	return len(c.Values) == 0
}

// Columns returns the written columns in a stable order
func (c ChangeSet) Columns() []string {
	cols := make([]string, 0, len(c.Values))
	for col := range c.Values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// BuildChangeSet converts changed_fields into column values. Key presence is
// the only signal of change; a JSON null becomes a nil value.
func (s Schema) BuildChangeSet(entityID uuid.UUID, changed map[string]json.RawMessage) (ChangeSet, error) {
	if entityID == uuid.Nil {
		return ChangeSet{}, shared.NewValidationError("ENTITY_ID_REQUIRED", s.Entity+" change has no entity_id")
	}
	cs := ChangeSet{EntityID: entityID, Values: make(map[string]any, len(changed))}
	for name, raw := range changed {
		field, ok := s.Fields[name]
		if !ok {
			cs.Ignored = append(cs.Ignored, name)
			continue
		}
		value, err := field.decode(raw)
		if err != nil {
			return ChangeSet{}, shared.NewValidationError("INVALID_FIELD_VALUE", fmt.Sprintf("%s.%s: %v", s.Entity, name, err))
		}
		cs.Values[field.Column] = value
	}
	sort.Strings(cs.Ignored)
	return cs, nil
}

func (f Field) decode(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("expected a string: %w", err)
	}
	switch f.Kind {
	case FieldUUID:
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		return id, nil
	case FieldTime:
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		if f.MaxLen > 0 && utf8.RuneCountInString(s) > f.MaxLen {
			return nil, fmt.Errorf("longer than %d characters", f.MaxLen)
		}
		return s, nil
	}
}

// SchemaFor returns the schema of a change event type
func SchemaFor(eventType string) (Schema, bool) {
	switch eventType {
	case EventTypeBranchUpdated:
		return BranchSchema, true
	case EventTypeEmployeeUpdated:
		return EmployeeSchema, true
	}
	return Schema{}, false
}
