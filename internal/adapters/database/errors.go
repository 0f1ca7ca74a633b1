package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

// storeError classifies a driver error. Connection-level failures become
// UNAVAILABLE so callers can tell "database down" from "bad query".
func storeError(message string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return apperrors.NewUnavailableError(message, err)
	}
	return apperrors.NewInternalError(message, err)
}
