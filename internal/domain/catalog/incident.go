package catalog

import (
	"time"

	"github.com/google/uuid"
)

// IncidentKind classifies consistency incidents
type IncidentKind string

const (
	// IncidentAmbiguousIdentity means more than one item matched one identity
	IncidentAmbiguousIdentity IncidentKind = "AMBIGUOUS_IDENTITY"
	// IncidentMissingProduct means a status update referenced an unknown item
	IncidentMissingProduct IncidentKind = "MISSING_PRODUCT"
)

// Incident is an operator-facing record of a consistency violation.
// Processing of the affected item halts; the consumer itself carries on.
type Incident struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey"`
	Kind       IncidentKind `gorm:"type:varchar(40);not null;index"`
	Subject    string       `gorm:"type:varchar(128);not null;index"`
	Source     string       `gorm:"type:varchar(128);not null"`
	Detail     string       `gorm:"type:text"`
	CreatedAt  time.Time    `gorm:"not null"`
	ResolvedAt *time.Time
}

// TableName returns the table name for GORM
func (Incident) TableName() string {
	return "consistency_incidents"
}

// NewIncident creates an open incident. Subject names the affected item or
// identity hash; source names the lot or event that surfaced it.
func NewIncident(kind IncidentKind, subject, source, detail string) *Incident {
	return &Incident{
		ID:        uuid.New(),
		Kind:      kind,
		Subject:   subject,
		Source:    source,
		Detail:    detail,
		CreatedAt: time.Now(),
	}
}

// IsOpen reports whether an operator still has to act on the incident
func (i *Incident) IsOpen() bool {
	return i.ResolvedAt == nil
}

// Resolve closes the incident
func (i *Incident) Resolve() {
	now := time.Now()
	i.ResolvedAt = &now
}
