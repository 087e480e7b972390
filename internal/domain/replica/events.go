package replica

// Change event types published by the master-data owners
const (
	EventTypeBranchUpdated   = "branch.updated"
	EventTypeEmployeeUpdated = "employee.updated"
)

// EmployeeSchemaVersion is the current employee.updated payload version.
// Version 1 carried the display name as changed_fields.name.
const EmployeeSchemaVersion = 2
