// Package sqlerr is the single error vocabulary crossing the executor and
// wire-session boundary. Storage and buffer errors are either recovered
// locally or wrapped as Internal before they reach a client.
package sqlerr

import "fmt"

type Kind int

const (
	Internal Kind = iota
	TableNotFound
	TableAlreadyExists
	Syntax
	UnsupportedFeature
	TypeMismatch
	ColumnCountMismatch
	ValueTooLong
	ColumnNotFound
	ProtocolViolation
)

// Error carries one executor-level failure with the fields the wire
// protocol can render (optional detail/hint/table/column).
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Hint    string
	Table   string
	Column  string
}

func (e *Error) Error() string { return e.Message }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// SQLState maps a kind to its PostgreSQL SQLSTATE code.
func (k Kind) SQLState() string {
	switch k {
	case TableNotFound:
		return "42P01"
	case TableAlreadyExists:
		return "42P07"
	case Syntax:
		return "42601"
	case UnsupportedFeature:
		return "0A000"
	case TypeMismatch:
		return "22P02"
	case ColumnCountMismatch, ValueTooLong:
		return "22026"
	case ColumnNotFound:
		return "42703"
	case ProtocolViolation:
		return "08P01"
	default:
		return "XX000"
	}
}

// Severity is ERROR for everything recoverable; protocol violations are
// FATAL and end the session.
func (k Kind) Severity() string {
	if k == ProtocolViolation {
		return "FATAL"
	}
	return "ERROR"
}

// ---- common constructors, phrased like PostgreSQL ----

func RelationNotFound(table string) *Error {
	return &Error{
		Kind:    TableNotFound,
		Message: fmt.Sprintf("relation %q does not exist", table),
		Table:   table,
	}
}

func RelationExists(table string) *Error {
	return &Error{
		Kind:    TableAlreadyExists,
		Message: fmt.Sprintf("relation %q already exists", table),
		Table:   table,
	}
}

func UndefinedColumn(table, column string) *Error {
	return &Error{
		Kind:    ColumnNotFound,
		Message: fmt.Sprintf("column %q of relation %q does not exist", column, table),
		Table:   table,
		Column:  column,
	}
}

func SyntaxError(msg string) *Error {
	return &Error{Kind: Syntax, Message: msg}
}

func Internalf(format string, args ...any) *Error {
	return &Error{Kind: Internal, Message: fmt.Sprintf(format, args...)}
}
