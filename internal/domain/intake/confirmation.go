package intake

import (
	"time"

	"github.com/erp/invsync/internal/domain/catalog"
	"github.com/google/uuid"
)

// Decision is an operator's answer to a confirmation request
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionDeclined Decision = "DECLINED"
)

// LineConfirmation is the durable record of an operator decision on a line.
// One decision per line.
type LineConfirmation struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	LotID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_lot_line_confirmations_line,priority:1"`
	LineIndex    int       `gorm:"not null;uniqueIndex:idx_lot_line_confirmations_line,priority:2"`
	IdentityHash string    `gorm:"type:varchar(64);not null;index"`
	Decision     Decision  `gorm:"type:varchar(20);not null"`
	DecidedBy    string    `gorm:"type:varchar(100);not null"`
	Reason       string    `gorm:"type:varchar(500)"`
	DecidedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LineConfirmation) TableName() string {
	return "lot_line_confirmations"
}

func newLineConfirmation(lotID uuid.UUID, line *LotLine, decision Decision, operator, reason string) *LineConfirmation {
	hash := ""
	if key, err := catalog.NewIdentityKey(line.Candidate()); err == nil {
		hash = key.Hash()
	}
	return &LineConfirmation{
		ID:           uuid.New(),
		LotID:        lotID,
		LineIndex:    line.LineIndex,
		IdentityHash: hash,
		Decision:     decision,
		DecidedBy:    operator,
		Reason:       reason,
		DecidedAt:    time.Now(),
	}
}
