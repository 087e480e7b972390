package intake

import (
	"strconv"
	"time"

	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type constants
const (
	EventTypeConfirmationRequired = "lot.confirmation.required"
	EventTypeLotPosted            = "lot.posted"
)

// ConfirmationRequiredEvent asks an operator to approve or decline the
// creation of a catalog item for a line that matched nothing
type ConfirmationRequiredEvent struct {
	shared.BaseDomainEvent
	LotID           uuid.UUID         `json:"lot_id"`
	LotNumber       string            `json:"lot_number"`
	LineIndex       int               `json:"line_index"`
	CandidateFields catalog.Candidate `json:"candidate_fields"`
	Quantity        int64             `json:"quantity"`
}

// NewConfirmationRequiredEvent creates a new ConfirmationRequiredEvent
func NewConfirmationRequiredEvent(lot *Lot, line *LotLine) *ConfirmationRequiredEvent {
	return &ConfirmationRequiredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeConfirmationRequired,
			AggregateTypeLot,
			lot.ID,
			shared.DeriveIdempotencyKey(lot.ID.String(), strconv.Itoa(line.LineIndex), "confirmation_required"),
		),
		LotID:           lot.ID,
		LotNumber:       lot.LotNumber,
		LineIndex:       line.LineIndex,
		CandidateFields: line.Candidate(),
		Quantity:        line.Quantity,
	}
}

// PostedLine is a resolved line as reported by LotPostedEvent
type PostedLine struct {
	LineIndex     int             `json:"line_index"`
	CatalogItemID uuid.UUID       `json:"catalog_item_id"`
	Quantity      int64           `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
}

// LotPostedEvent is raised when a lot's quantities were added to the catalog
type LotPostedEvent struct {
	shared.BaseDomainEvent
	LotID         uuid.UUID    `json:"lot_id"`
	LotNumber     string       `json:"lot_number"`
	Lines         []PostedLine `json:"lines"`
	RejectedLines []int        `json:"rejected_lines,omitempty"`
	PostedAt      time.Time    `json:"posted_at"`
}

// NewLotPostedEvent creates a new LotPostedEvent
func NewLotPostedEvent(lot *Lot) *LotPostedEvent {
	event := &LotPostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeLotPosted,
			AggregateTypeLot,
			lot.ID,
			shared.DeriveIdempotencyKey(lot.ID.String(), "posted"),
		),
		LotID:     lot.ID,
		LotNumber: lot.LotNumber,
		Lines:     make([]PostedLine, 0, len(lot.Lines)),
	}
	if lot.PostedAt != nil {
		event.PostedAt = *lot.PostedAt
	}
	for _, line := range lot.Lines {
		switch line.Status {
		case LineStatusResolved:
			event.Lines = append(event.Lines, PostedLine{
				LineIndex:     line.LineIndex,
				CatalogItemID: *line.CatalogItemID,
				Quantity:      line.Quantity,
				UnitCost:      line.UnitCost,
			})
		case LineStatusRejected:
			event.RejectedLines = append(event.RejectedLines, line.LineIndex)
		}
	}
	return event
}
