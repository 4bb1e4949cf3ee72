package relate

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
)

func TestErrorWrapping(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
	}{
		{&NotFoundError{Entity: "User"}, ErrNotFound},
		{&MultipleRecordsFoundError{Entity: "User", Count: 2}, ErrMultipleRecords},
		{&RelationNotFoundError{Entity: "User", Relation: "posts"}, ErrRelationNotFound},
		{&InvalidArgumentError{Message: "bad"}, ErrInvalidArgument},
		{&InvalidCastError{Entity: "User", Attribute: "age", CastType: "int"}, ErrInvalidCast},
		{&MassAssignmentError{Entity: "User", Attribute: "role"}, ErrMassAssignment},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.sentinel) {
			t.Errorf("%T does not unwrap to its sentinel", tt.err)
		}
		if tt.err.Error() == "" {
			t.Errorf("%T has empty message", tt.err)
		}
	}
}

func TestWrapQueryErrorClassification(t *testing.T) {
	dup := WrapQueryError("INSERT", "INSERT INTO t", nil,
		fmt.Errorf("UNIQUE constraint failed: t.id"))
	if !IsDuplicateKey(dup) {
		t.Error("sqlite unique violation not classified as duplicate key")
	}

	dupMySQL := WrapQueryError("INSERT", "INSERT INTO t", nil,
		fmt.Errorf("Error 1062: Duplicate entry '1' for key 'PRIMARY'"))
	if !IsDuplicateKey(dupMySQL) {
		t.Error("mysql duplicate entry not classified as duplicate key")
	}

	fk := WrapQueryError("DELETE", "DELETE FROM t", nil,
		fmt.Errorf("FOREIGN KEY constraint failed"))
	if !IsForeignKeyViolation(fk) {
		t.Error("foreign key violation not classified")
	}
	if !IsConstraintViolation(fk) || !IsConstraintViolation(dup) {
		t.Error("constraint classification incomplete")
	}

	nf := WrapQueryError("SELECT", "SELECT 1", nil, sql.ErrNoRows)
	if !IsNotFound(nf) {
		t.Error("sql.ErrNoRows not classified as not found")
	}

	plain := WrapQueryError("SELECT", "SELECT 1", []any{1}, fmt.Errorf("disk full"))
	var qe *QueryError
	if !errors.As(plain, &qe) {
		t.Fatal("wrap did not produce a *QueryError")
	}
	if qe.Query != "SELECT 1" {
		t.Errorf("query context = %q", qe.Query)
	}
}

func TestWrapQueryErrorNil(t *testing.T) {
	if WrapQueryError("SELECT", "SELECT 1", nil, nil) != nil {
		t.Error("wrapping nil must return nil")
	}
}
