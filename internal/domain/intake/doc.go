// Package intake models received inventory lots and the resolution of their
// lines against the catalog.
//
// A lot moves RECEIVED -> LINES_PENDING_RESOLUTION -> {AWAITING_CONFIRMATION |
// RESOLVED} -> POSTED. Lines that match no catalog item wait for an operator
// decision; a line never creates a catalog item on its own. Posting is refused
// while any line still waits, and declined lines are excluded from posting.
package intake
