// Package replica holds local read replicas of master data owned by other
// services (branches, employees) and the merge policy used to keep them in sync.
//
// Change events carry only the fields that changed. A present key is written,
// an explicit null writes NULL, and an absent key leaves the column alone.
// Nothing is defaulted.
package replica
