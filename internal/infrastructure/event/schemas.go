package event

import (
	"encoding/json"
	"fmt"

	"github.com/erp/invsync/internal/domain/replica"
)

// RegisterSchemas declares the current schema versions of the inbound event
// types that have evolved
func RegisterSchemas(r *VersionRegistry) error {
	return r.Register(replica.EventTypeEmployeeUpdated, replica.EmployeeSchemaVersion,
		renameChangedFields(1, map[string]string{"name": "full_name"}),
	)
}

// renameChangedFields renames keys inside changed_fields. Presence carries
// meaning there, so an absent key stays absent and a null stays null.
func renameChangedFields(source int, renames map[string]string) *FieldUpgrader {
	return NewFieldUpgrader(source, func(fields map[string]json.RawMessage) error {
		raw, ok := fields["changed_fields"]
		if !ok || string(raw) == "null" {
			return nil
		}
		var changed map[string]json.RawMessage
		if err := json.Unmarshal(raw, &changed); err != nil {
			return fmt.Errorf("changed_fields is not a JSON object: %w", err)
		}
		for from, to := range renames {
			v, present := changed[from]
			if !present {
				continue
			}
			delete(changed, from)
			if _, exists := changed[to]; !exists {
				changed[to] = v
			}
		}
		out, err := json.Marshal(changed)
		if err != nil {
			return err
		}
		fields["changed_fields"] = out
		return nil
	})
}
