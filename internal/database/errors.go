package database

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrForeignKey      = errors.New("foreign key constraint failed")
	ErrUniqueViolation = errors.New("unique constraint violated")
	ErrNotNull         = errors.New("not null constraint failed")
	ErrCheckConstraint = errors.New("check constraint failed")
)

// ConstraintKind identifies which SQLite constraint rejected a statement.
type ConstraintKind string

const (
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintNotNull    ConstraintKind = "not_null"
	ConstraintCheck      ConstraintKind = "check"
)

type ConstraintError struct {
	Kind   ConstraintKind
	Table  string
	Column string
	Cause  error
	raw    string
}

func (e *ConstraintError) Error() string {
	if e.Column != "" {
		return string(e.Kind) + " constraint on " + e.Table + "." + e.Column + ": " + e.raw
	}
	return string(e.Kind) + " constraint: " + e.raw
}

func (e *ConstraintError) Unwrap() error {
	return e.Cause
}

var (
	fkPattern      = regexp.MustCompile(`FOREIGN KEY constraint failed`)
	uniquePattern  = regexp.MustCompile(`UNIQUE constraint failed: ([^\s,]+)`)
	notNullPattern = regexp.MustCompile(`NOT NULL constraint failed: ([^\s]+)`)
	checkPattern   = regexp.MustCompile(`CHECK constraint failed`)
)

// ClassifyError turns a raw driver error into a *ConstraintError when it
// reports a constraint violation, and returns it unchanged otherwise.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var ce *ConstraintError
	if errors.As(err, &ce) {
		return err
	}

	msg := err.Error()

	switch {
	case fkPattern.MatchString(msg):
		return &ConstraintError{Kind: ConstraintForeignKey, Cause: ErrForeignKey, raw: msg}
	case uniquePattern.MatchString(msg):
		ce := &ConstraintError{Kind: ConstraintUnique, Cause: ErrUniqueViolation, raw: msg}
		ce.Table, ce.Column = splitColumn(uniquePattern.FindStringSubmatch(msg)[1])
		return ce
	case notNullPattern.MatchString(msg):
		ce := &ConstraintError{Kind: ConstraintNotNull, Cause: ErrNotNull, raw: msg}
		ce.Table, ce.Column = splitColumn(notNullPattern.FindStringSubmatch(msg)[1])
		return ce
	case checkPattern.MatchString(msg):
		return &ConstraintError{Kind: ConstraintCheck, Cause: ErrCheckConstraint, raw: msg}
	}

	return err
}

func splitColumn(qualified string) (string, string) {
	table, column, ok := strings.Cut(qualified, ".")
	if !ok {
		return "", qualified
	}
	return table, column
}

func IsUniqueError(err error) bool {
	return errors.Is(ClassifyError(err), ErrUniqueViolation)
}

// IsUniqueViolationOn reports whether err is a unique violation on the given
// column (of any table).
func IsUniqueViolationOn(err error, column string) bool {
	var ce *ConstraintError
	if !errors.As(ClassifyError(err), &ce) {
		return false
	}
	return ce.Kind == ConstraintUnique && ce.Column == column
}

func IsForeignKeyError(err error) bool {
	return errors.Is(ClassifyError(err), ErrForeignKey)
}
