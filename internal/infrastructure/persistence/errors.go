package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// pgUniqueViolation is the SQLSTATE of a unique constraint violation
const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err was caused by a unique or primary key constraint
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE "+pgUniqueViolation) ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// translateError maps driver errors onto domain errors
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", shared.ErrAlreadyExists, err)
	}
	return err
}
