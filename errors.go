package relate

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure cases
var (
	// ErrNotFound is returned when a lookup matched zero rows
	ErrNotFound = errors.New("relate: record not found")

	// ErrMultipleRecords is returned when Sole matched more than one row
	ErrMultipleRecords = errors.New("relate: multiple records found")

	// ErrRelationNotFound is returned when an entity type has no relation
	// registered under the requested name
	ErrRelationNotFound = errors.New("relate: relation not found")

	// ErrInvalidArgument is returned for malformed operator/value
	// combinations and structurally invalid attach/sync input
	ErrInvalidArgument = errors.New("relate: invalid argument")

	// ErrInvalidCast is returned when a declared attribute cast cannot
	// be resolved
	ErrInvalidCast = errors.New("relate: invalid cast")

	// ErrMassAssignment is returned when a guarded attribute is assigned
	// during a bulk fill
	ErrMassAssignment = errors.New("relate: mass assignment violation")

	// ErrUnknownEntity is returned when no schema is registered for a name
	ErrUnknownEntity = errors.New("relate: unknown entity type")

	// ErrDuplicateKey is returned for unique constraint violations
	ErrDuplicateKey = errors.New("relate: duplicate key violation")

	// ErrForeignKey is returned for foreign key constraint violations
	ErrForeignKey = errors.New("relate: foreign key constraint violation")

	// ErrNilDatabase is returned when no usable connection is configured
	ErrNilDatabase = errors.New("relate: nil database connection")
)

// NotFoundError reports a failed lookup together with the entity type and,
// for key-based lookups, the keys that had no matching row.
type NotFoundError struct {
	Entity string
	Keys   []any
}

func (e *NotFoundError) Error() string {
	if len(e.Keys) == 0 {
		return fmt.Sprintf("relate: no records found for entity %s", e.Entity)
	}
	return fmt.Sprintf("relate: no records found for entity %s with keys %v", e.Entity, e.Keys)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// MultipleRecordsFoundError reports that Sole matched more than one row.
type MultipleRecordsFoundError struct {
	Entity string
	Count  int
}

func (e *MultipleRecordsFoundError) Error() string {
	return fmt.Sprintf("relate: %d records found for entity %s, expected exactly one", e.Count, e.Entity)
}

func (e *MultipleRecordsFoundError) Unwrap() error { return ErrMultipleRecords }

// RelationNotFoundError reports a missing or wrongly-typed relation.
// Expected is set when the caller required a specific kind.
type RelationNotFoundError struct {
	Entity   string
	Relation string
	Expected string
}

func (e *RelationNotFoundError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("relate: relation %q on entity %s is not a %s relation",
			e.Relation, e.Entity, e.Expected)
	}
	return fmt.Sprintf("relate: relation %q is not defined on entity %s", e.Relation, e.Entity)
}

func (e *RelationNotFoundError) Unwrap() error { return ErrRelationNotFound }

// InvalidArgumentError reports malformed caller input with context.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return "relate: invalid argument: " + e.Message
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

// InvalidCastError reports an unresolvable attribute cast declaration.
type InvalidCastError struct {
	Entity    string
	Attribute string
	CastType  string
}

func (e *InvalidCastError) Error() string {
	return fmt.Sprintf("relate: cannot cast attribute %q of entity %s to unresolvable type %q",
		e.Attribute, e.Entity, e.CastType)
}

func (e *InvalidCastError) Unwrap() error { return ErrInvalidCast }

// MassAssignmentError reports a guarded attribute rejected during Fill.
type MassAssignmentError struct {
	Entity    string
	Attribute string
}

func (e *MassAssignmentError) Error() string {
	return fmt.Sprintf("relate: attribute %q is not fillable on entity %s", e.Attribute, e.Entity)
}

func (e *MassAssignmentError) Unwrap() error { return ErrMassAssignment }

// QueryError wraps database errors with query context for better debugging
type QueryError struct {
	Query     string // The SQL query that failed
	Args      []any  // The query arguments
	Operation string // Operation type: SELECT, EXEC, PREPARE, SCAN
	Err       error  // The underlying error
}

func (e *QueryError) Error() string {
	argsStr := formatArgs(e.Args)
	return fmt.Sprintf("relate: %s failed: %v\nQuery: %s\nArgs: %s",
		e.Operation, e.Err, e.Query, argsStr)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// WrapQueryError wraps a database error with query context
func WrapQueryError(operation, query string, args []any, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	// Check for constraint violations
	errMsg := err.Error()
	if strings.Contains(errMsg, "duplicate key") ||
		strings.Contains(errMsg, "UNIQUE constraint") ||
		strings.Contains(errMsg, "unique constraint") ||
		strings.Contains(errMsg, "Duplicate entry") {
		return &QueryError{
			Query:     query,
			Args:      args,
			Operation: operation,
			Err:       fmt.Errorf("%w: %v", ErrDuplicateKey, err),
		}
	}

	if strings.Contains(errMsg, "foreign key") ||
		strings.Contains(errMsg, "FOREIGN KEY") {
		return &QueryError{
			Query:     query,
			Args:      args,
			Operation: operation,
			Err:       fmt.Errorf("%w: %v", ErrForeignKey, err),
		}
	}

	return &QueryError{
		Query:     query,
		Args:      args,
		Operation: operation,
		Err:       err,
	}
}

// IsNotFound checks if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}

// IsDuplicateKey checks if the error is a duplicate key violation
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsForeignKeyViolation checks if the error is a foreign key violation
func IsForeignKeyViolation(err error) bool {
	return errors.Is(err, ErrForeignKey)
}

// IsConstraintViolation checks if the error is a constraint violation
func IsConstraintViolation(err error) bool {
	return errors.Is(err, ErrDuplicateKey) || errors.Is(err, ErrForeignKey)
}

// formatArgs formats query arguments for error messages
func formatArgs(args []any) string {
	if len(args) == 0 {
		return "[]"
	}

	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprintf("%v", arg)
	}

	// Limit output length
	result := "[" + strings.Join(parts, ", ") + "]"
	if len(result) > 200 {
		return result[:197] + "...]"
	}
	return result
}
