package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeLot is the aggregate type for lots
const AggregateTypeLot = "Lot"

// LotStatus represents the state of a lot
type LotStatus string

const (
	LotStatusReceived               LotStatus = "RECEIVED"
	LotStatusLinesPendingResolution LotStatus = "LINES_PENDING_RESOLUTION"
	LotStatusAwaitingConfirmation   LotStatus = "AWAITING_CONFIRMATION"
	LotStatusResolved               LotStatus = "RESOLVED"
	LotStatusPosted                 LotStatus = "POSTED"
)

// LineInput is one line of a "lot received" command
type LineInput struct {
	Candidate catalog.Candidate
	Quantity  int64
	UnitCost  decimal.Decimal
}

// QuantityIncrement is the stock added to one catalog item by posting a lot
type QuantityIncrement struct {
	CatalogItemID uuid.UUID
	Quantity      int64
}

// Lot represents a received batch of inventory.
// It is the aggregate root for its lines.
type Lot struct {
	shared.BaseAggregateRoot
	LotNumber   string     `gorm:"type:varchar(64);not null;uniqueIndex"`
	VendorID    *uuid.UUID `gorm:"type:uuid;index"`
	WarehouseID *uuid.UUID `gorm:"type:uuid"`
	ReceivedAt  time.Time  `gorm:"not null"`
	Status      LotStatus  `gorm:"type:varchar(32);not null;index"`
	PostedAt    *time.Time
	Lines       []LotLine `gorm:"foreignKey:LotID;references:ID"`
}

// TableName returns the table name for GORM
func (Lot) TableName() string {
	return "lots"
}

// NewLot creates a lot in RECEIVED with every line pending resolution.
// Lines without a vendor or warehouse take the lot's.
func NewLot(lotNumber string, vendorID, warehouseID *uuid.UUID, receivedAt time.Time, inputs []LineInput) (*Lot, error) {
	lotNumber = strings.TrimSpace(lotNumber)
	if lotNumber == "" {
		return nil, shared.NewValidationError("LOT_NUMBER_REQUIRED", "lot number cannot be empty")
	}
	if len(lotNumber) > 64 {
		return nil, shared.NewValidationError("LOT_NUMBER_TOO_LONG", "lot number cannot exceed 64 characters")
	}
	if len(inputs) == 0 {
		return nil, shared.NewValidationError("LOT_LINES_REQUIRED", "lot must have at least one line")
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	lot := &Lot{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		LotNumber:         lotNumber,
		VendorID:          vendorID,
		WarehouseID:       warehouseID,
		ReceivedAt:        receivedAt,
		Status:            LotStatusReceived,
		Lines:             make([]LotLine, 0, len(inputs)),
	}

	for i, in := range inputs {
		candidate := in.Candidate
		if candidate.VendorID == nil {
			candidate.VendorID = vendorID
		}
		if candidate.WarehouseID == nil {
			candidate.WarehouseID = warehouseID
		}
		line, err := newLotLine(lot.ID, i, candidate, in.Quantity, in.UnitCost)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		lot.Lines = append(lot.Lines, *line)
	}

	return lot, nil
}

// Line returns the line at index
func (l *Lot) Line(index int) (*LotLine, error) {
	for i := range l.Lines {
		if l.Lines[i].LineIndex == index {
			return &l.Lines[i], nil
		}
	}
	return nil, shared.NewValidationError("LINE_NOT_FOUND", fmt.Sprintf("lot %s has no line %d", l.LotNumber, index))
}

// BeginResolution moves a received lot into resolution
func (l *Lot) BeginResolution() error {
	if l.Status != LotStatusReceived {
		return shared.NewBusinessRuleViolation("INVALID_LOT_STATE", "resolution can only begin on a received lot")
	}
	l.Status = LotStatusLinesPendingResolution
	l.touch()
	return nil
}

// ResolveLine binds a line to an existing catalog item
func (l *Lot) ResolveLine(index int, catalogItemID uuid.UUID) error {
	if err := l.ensureNotPosted(); err != nil {
		return err
	}
	line, err := l.Line(index)
	if err != nil {
		return err
	}
	if err := line.resolve(catalogItemID); err != nil {
		return err
	}
	l.refreshStatus()
	return nil
}

// RequireConfirmation parks a line that matched nothing until an operator decides
func (l *Lot) RequireConfirmation(index int) error {
	if err := l.ensureNotPosted(); err != nil {
		return err
	}
	line, err := l.Line(index)
	if err != nil {
		return err
	}
	if err := line.awaitConfirmation(); err != nil {
		return err
	}
	l.AddDomainEvent(NewConfirmationRequiredEvent(l, line))
	l.refreshStatus()
	return nil
}

// ConfirmLine records an operator's approval to create a catalog item for
// the line. The line stays AWAITING_CONFIRMATION until ResolveLine binds it
// to the created (or concurrently created) item.
func (l *Lot) ConfirmLine(index int, operator string) (*LineConfirmation, *catalog.CreationApproval, error) {
	line, err := l.lineAwaitingDecision(index, operator)
	if err != nil {
		return nil, nil, err
	}
	confirmation := newLineConfirmation(l.ID, line, DecisionApproved, operator, "")
	approval := &catalog.CreationApproval{
		ConfirmationID: confirmation.ID,
		Candidate:      line.Candidate(),
		ApprovedBy:     confirmation.DecidedBy,
		ApprovedAt:     confirmation.DecidedAt,
	}
	l.touch()
	return confirmation, approval, nil
}

// DeclineLine rejects a line. Rejected lines are excluded from posting and
// cannot be revived; a corrected identity arrives in a new lot.
func (l *Lot) DeclineLine(index int, operator, reason string) (*LineConfirmation, error) {
	line, err := l.lineAwaitingDecision(index, operator)
	if err != nil {
		return nil, err
	}
	confirmation := newLineConfirmation(l.ID, line, DecisionDeclined, operator, reason)
	line.reject(reason)
	l.refreshStatus()
	return confirmation, nil
}

// CanPost reports whether every line has reached a terminal resolution
func (l *Lot) CanPost() bool {
	return l.Status == LotStatusResolved
}

// Post finalizes the lot and returns the quantity increments to apply, one
// per catalog item. Rejected lines contribute nothing.
func (l *Lot) Post() ([]QuantityIncrement, error) {
	if l.Status == LotStatusPosted {
		return nil, shared.NewBusinessRuleViolation("LOT_ALREADY_POSTED", "lot has already been posted")
	}
	l.refreshStatus()
	if !l.CanPost() {
		return nil, shared.NewBusinessRuleViolation(
			"LOT_NOT_POSTABLE",
			fmt.Sprintf("lot %s has %d line(s) awaiting confirmation and %d pending resolution",
				l.LotNumber, l.countLines(LineStatusAwaitingConfirmation), l.countLines(LineStatusPendingResolution)),
		)
	}

	totals := make(map[uuid.UUID]int64)
	order := make([]uuid.UUID, 0)
	for _, line := range l.Lines {
		if line.Status != LineStatusResolved {
			continue
		}
		id := *line.CatalogItemID
		if _, seen := totals[id]; !seen {
			order = append(order, id)
		}
		totals[id] += line.Quantity
	}
	increments := make([]QuantityIncrement, 0, len(order))
	for _, id := range order {
		increments = append(increments, QuantityIncrement{CatalogItemID: id, Quantity: totals[id]})
	}

	now := time.Now()
	l.Status = LotStatusPosted
	l.PostedAt = &now
	l.touch()
	l.AddDomainEvent(NewLotPostedEvent(l))
	return increments, nil
}

func (l *Lot) lineAwaitingDecision(index int, operator string) (*LotLine, error) {
	if err := l.ensureNotPosted(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(operator) == "" {
		return nil, shared.NewValidationError("OPERATOR_REQUIRED", "an operator must record the decision")
	}
	line, err := l.Line(index)
	if err != nil {
		return nil, err
	}
	if line.Status != LineStatusAwaitingConfirmation {
		return nil, shared.NewBusinessRuleViolation(
			"LINE_NOT_AWAITING_CONFIRMATION",
			fmt.Sprintf("line %d is %s", index, line.Status),
		)
	}
	return line, nil
}

func (l *Lot) ensureNotPosted() error {
	if l.Status == LotStatusPosted {
		return shared.NewBusinessRuleViolation("LOT_ALREADY_POSTED", "posted lots are immutable")
	}
	return nil
}

// refreshStatus derives the lot state from its lines once resolution began
func (l *Lot) refreshStatus() {
	if l.Status == LotStatusPosted || l.Status == LotStatusReceived {
		l.touch()
		return
	}
	switch {
	case l.countLines(LineStatusPendingResolution) > 0:
		l.Status = LotStatusLinesPendingResolution
	case l.countLines(LineStatusAwaitingConfirmation) > 0:
		l.Status = LotStatusAwaitingConfirmation
	default:
		l.Status = LotStatusResolved
	}
	l.touch()
}

func (l *Lot) countLines(status LineStatus) int {
	n := 0
	for _, line := range l.Lines {
		if line.Status == status {
			n++
		}
	}
	return n
}

func (l *Lot) touch() {
	l.UpdatedAt = time.Now()
}
