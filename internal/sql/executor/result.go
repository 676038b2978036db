package executor

import "github.com/kafaichoi/minipg/internal/record"

// Column describes one output column of a result set.
type Column struct {
	Name string
	Type record.ColumnType
}

// Result is the generic query result returned to the session layer.
type Result struct {
	Columns []Column
	Rows    [][]record.Value

	// Command is the CommandComplete tag, e.g. "SELECT 2" or "INSERT 0 1".
	Command string

	// HasRowSet distinguishes a zero-row SELECT (which still carries a
	// RowDescription) from DML that produces no row set at all.
	HasRowSet bool
}
