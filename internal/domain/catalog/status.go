package catalog

import (
	"strings"

	"github.com/erp/invsync/internal/domain/shared"
)

// ProductStatus represents the operational status of a catalog item
type ProductStatus string

const (
	ProductStatusUnknown  ProductStatus = "UNKNOWN"
	ProductStatusActive   ProductStatus = "ACTIVE"
	ProductStatusReserved ProductStatus = "RESERVED"
	ProductStatusSold     ProductStatus = "SOLD"
	ProductStatusDamaged  ProductStatus = "DAMAGED"
	ProductStatusInactive ProductStatus = "INACTIVE"
)

// IsValid reports whether s is a known status
func (s ProductStatus) IsValid() bool {
	switch s {
	case ProductStatusUnknown, ProductStatusActive, ProductStatusReserved,
		ProductStatusSold, ProductStatusDamaged, ProductStatusInactive:
		return true
	}
	return false
}

// StatusRule describes how a wire target status is applied
type StatusRule struct {
	Target ProductStatus
	// NoOpWhenEqual leaves the item untouched apart from the sequence watermark
	// when it already has Target. When false, a repeated report still refreshes
	// StatusChangedAt.
	NoOpWhenEqual bool
}

// StatusMap maps product.status.update target_status values to item statuses.
// Lookup keys are lower case.
var StatusMap = map[string]StatusRule{
	"active":   {Target: ProductStatusActive, NoOpWhenEqual: true},
	"in_stock": {Target: ProductStatusActive, NoOpWhenEqual: true},
	"reserved": {Target: ProductStatusReserved, NoOpWhenEqual: true},
	"sold":     {Target: ProductStatusSold, NoOpWhenEqual: true},
	"inactive": {Target: ProductStatusInactive, NoOpWhenEqual: true},
	"damaged":  {Target: ProductStatusDamaged, NoOpWhenEqual: false},
}

// LookupStatusRule resolves a wire target status. Unknown targets are
// malformed payloads.
func LookupStatusRule(target string) (StatusRule, error) {
	rule, ok := StatusMap[strings.ToLower(strings.TrimSpace(target))]
	if !ok {
		return StatusRule{}, shared.NewValidationError("UNKNOWN_TARGET_STATUS", "unknown target_status: "+target)
	}
	return rule, nil
}

// StatusDecision is the outcome of offering a status update to an item
type StatusDecision string

const (
	// StatusDecisionApplied means the status changed
	StatusDecisionApplied StatusDecision = "APPLIED"
	// StatusDecisionUnchanged means the item already had the target status
	StatusDecisionUnchanged StatusDecision = "UNCHANGED"
	// StatusDecisionStale means a newer update was already applied
	StatusDecisionStale StatusDecision = "STALE"
)
