package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrConnection marks failures to reach or keep talking to a database.
	// A run cannot continue after one.
	ErrConnection = errors.New("connection failure")
	// ErrConstraint marks duplicate-key and foreign-key violations. Reloads
	// over shared master data hit these routinely.
	ErrConstraint = errors.New("constraint violation")
	// ErrAborted marks errors after which the server has already rolled the
	// transaction back (deadlock victim, doomed transaction). Like
	// ErrConnection it ends the run.
	ErrAborted = errors.New("transaction aborted")
)

// Connection wraps err as a connection failure.
func Connection(err error) error {
	if err == nil || errors.Is(err, ErrConnection) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

// Constraint wraps err as a constraint violation.
func Constraint(err error) error {
	if err == nil || errors.Is(err, ErrConstraint) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConstraint, err)
}

// Aborted wraps err as a server-side transaction abort.
func Aborted(err error) error {
	if err == nil || errors.Is(err, ErrAborted) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrAborted, err)
}

// IsAborted reports whether the server rolled the transaction back.
func IsAborted(err error) bool { return errors.Is(err, ErrAborted) }

// IsFatal reports whether a run must stop after err.
func IsFatal(err error) bool { return IsConnection(err) || IsAborted(err) }

// IsConnection reports whether err is a connection failure.
func IsConnection(err error) bool { return errors.Is(err, ErrConnection) }

// IsConstraint reports whether err is a constraint violation.
func IsConstraint(err error) bool { return errors.Is(err, ErrConstraint) }

// LooksLikeConnection recognizes driver-independent connection failures:
// bad pooled connections, network errors, resets and EOFs.
func LooksLikeConnection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
