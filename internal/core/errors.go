package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ValidationError reports malformed or missing input. It is always raised
// before any state is mutated.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError reports a status change the document's transition
// graph does not permit.
type InvalidTransitionError struct {
	DocType DocType
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.DocType, e.From, e.To)
}

// AccessDeniedError reports a policy refusal. The document is never touched.
type AccessDeniedError struct {
	ActorID int
	Role    Role
	Action  Action
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("actor %d (%s) may not %s", e.ActorID, e.Role, e.Action)
}

// NotFoundError reports an unknown entity reference.
type NotFoundError struct {
	Kind string
	ID   int
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %d not found", e.Kind, e.ID) }

func notFound(kind string, id int) error { return &NotFoundError{Kind: kind, ID: id} }

// ConflictError reports a lost race that was detected, e.g. a duplicate
// document number surfacing as a unique violation.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsInvalidTransition reports whether err is (or wraps) an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var v *InvalidTransitionError
	return errors.As(err, &v)
}

// IsAccessDenied reports whether err is (or wraps) an AccessDeniedError.
func IsAccessDenied(err error) bool {
	var v *AccessDeniedError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var v *NotFoundError
	return errors.As(err, &v)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var v *ConflictError
	return errors.As(err, &v)
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505). Used to turn numbering races into retries.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
