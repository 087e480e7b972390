// Package catalog holds the spare-part master data and the rules that guard it.
//
// Responsibilities:
//   - Identity resolution: mapping a candidate (part name, brand, vendor,
//     warehouse, model) to at most one CatalogItem, with absent dimensions
//     meaning "explicitly none"
//   - Creation gating: a CatalogItem only comes into existence through an
//     operator-approved CreationApproval
//   - Operational status: the STATUS_MAP from wire target statuses to item
//     statuses and the monotonic sequence rule used by the status consumer
//
// Key Aggregates:
//   - CatalogItem: the master record, unique per identity hash
//
// Supporting records:
//   - StatusLedgerEntry: one row per applied product.status.update idempotency key
//   - Incident: an operator-facing record of a consistency violation
package catalog
