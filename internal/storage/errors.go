package storage

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/lattice/internal/apperr"
)

// classify maps driver errors onto the storage error kinds.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(err, apperr.KindNotFound, op)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return apperr.Wrap(err, apperr.KindStorageUnavailable, op)
	}
	if errors.Is(err, sql.ErrTxDone) {
		return apperr.Wrap(err, apperr.KindTransactionFailed, op)
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrFull:
			return apperr.Wrap(err, apperr.KindQuotaExceeded, op)
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return apperr.Wrap(err, apperr.KindTransactionFailed, op)
		case sqlite3.ErrConstraint:
			return apperr.Wrap(err, apperr.KindConflict, op)
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB, sqlite3.ErrReadonly, sqlite3.ErrCorrupt:
			return apperr.Wrap(err, apperr.KindStorageUnavailable, op)
		}
	}
	return apperr.Wrap(err, apperr.KindUnknown, op)
}
