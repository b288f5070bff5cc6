package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"storefront/internal/domain"
)

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
	pqCheckViolation      = "23514"
	pqNumericOutOfRange   = "22003"
	pqSerializationFail   = "40001"
	pqDeadlockDetected    = "40P01"
	pqLockNotAvailable    = "55P03"
	pqQueryCanceled       = "57014"
)

func pqCode(err error) (pq.ErrorCode, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code, true
	}
	return "", false
}

// translate classifies a driver error. Errors it does not recognise are wrapped as Unexpected.
func translate(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	msg := fmt.Sprintf(format, args...)
	code, ok := pqCode(err)
	if !ok {
		return domain.Unexpected(err, "%s", msg)
	}
	switch code {
	case pqLockNotAvailable, pqDeadlockDetected, pqSerializationFail, pqQueryCanceled:
		return domain.Conflict(err, "%s: concurrent update in progress, retry the request", msg)
	case pqForeignKeyViolation:
		return &domain.Error{Kind: domain.KindNotFound, Message: msg + ": referenced record does not exist", Err: err}
	case pqCheckViolation:
		return &domain.Error{Kind: domain.KindInvalidState, Message: msg + ": constraint violation", Err: err}
	case pqNumericOutOfRange:
		return &domain.Error{Kind: domain.KindInvalidState, Message: msg + ": value out of range", Err: err}
	case pqUniqueViolation:
		return domain.Conflict(err, "%s: record already exists", msg)
	default:
		return domain.Unexpected(err, "%s", msg)
	}
}
