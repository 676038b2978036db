package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kafaichoi/minipg/internal/record"
)

func TestParse_EmptyQuery(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t", ";", "  ;  "} {
		_, err := Parse(input)
		require.Error(t, err, "input %q", input)
		assert.Equal(t, "Empty query", err.Error())
	}
}

func TestParse_Deterministic(t *testing.T) {
	const q = "SELECT id FROM users WHERE id = 1 AND name = 'x'"
	first, err := Parse(q)
	require.NoError(t, err)
	second, err := Parse(q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParse_SelectLiteral(t *testing.T) {
	stmt, err := Parse("SELECT 1")
	require.NoError(t, err)

	s, ok := stmt.(*SelectStmt)
	require.True(t, ok, "want *SelectStmt, got %T", stmt)
	require.Len(t, s.Items, 1)
	assert.False(t, s.HasFrom)

	lit, ok := s.Items[0].(*Literal)
	require.True(t, ok)
	assert.Equal(t, record.Int64(1), lit.Value)
}

func TestParse_SelectMixedItems(t *testing.T) {
	stmt, err := Parse("SELECT id, *, 'x', 42 FROM users;")
	require.NoError(t, err)

	s := stmt.(*SelectStmt)
	require.Len(t, s.Items, 4)
	assert.True(t, s.HasFrom)
	assert.Equal(t, "users", s.From)

	_, isCol := s.Items[0].(*ColumnRef)
	assert.True(t, isCol)
	_, isWild := s.Items[1].(*Wildcard)
	assert.True(t, isWild)
	_, isLit := s.Items[2].(*Literal)
	assert.True(t, isLit)
}

func TestParse_SelectFromRejectsNonIdent(t *testing.T) {
	_, err := Parse("SELECT * FROM 42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be a number")

	_, err = Parse("SELECT * FROM 'users'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be a string literal")
}

func TestParse_SelectTrailingTokens(t *testing.T) {
	_, err := Parse("SELECT 1 2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after SELECT list")

	_, err = Parse("SELECT * FROM users users2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after table name")

	_, err = Parse("SELECT * FROM users WHERE id = 1 garbage")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after WHERE clause")
}

func TestParse_Insert(t *testing.T) {
	stmt, err := Parse("INSERT INTO users VALUES (1, 'John', true)")
	require.NoError(t, err)

	s, ok := stmt.(*InsertStmt)
	require.True(t, ok, "want *InsertStmt, got %T", stmt)
	assert.Equal(t, "users", s.Table)
	require.Len(t, s.Values, 3)
	assert.Equal(t, record.Int64(1), s.Values[0])
	assert.Equal(t, record.Text("John"), s.Values[1])
	assert.Equal(t, record.Boolean(true), s.Values[2])
}

func TestParse_Insert_Invalid(t *testing.T) {
	_, err := Parse("INSERT users VALUES (1)")
	require.Error(t, err)

	// empty value list
	_, err = Parse("INSERT INTO users VALUES ()")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one value")

	// column references are not literals
	_, err = Parse("INSERT INTO users VALUES (id)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Only literal values")
}

func TestParse_CreateTable(t *testing.T) {
	stmt, err := Parse("CREATE TABLE users (id INTEGER, name VARCHAR(255), bio TEXT, active BOOLEAN)")
	require.NoError(t, err)

	s, ok := stmt.(*CreateTableStmt)
	require.True(t, ok, "want *CreateTableStmt, got %T", stmt)
	assert.Equal(t, "users", s.Table)
	require.Len(t, s.Columns, 4)

	assert.Equal(t, record.Column{Name: "id", Type: record.ColInteger}, s.Columns[0])
	assert.Equal(t, record.Column{Name: "name", Type: record.ColVarchar, Size: 255}, s.Columns[1])
	assert.Equal(t, record.Column{Name: "bio", Type: record.ColText}, s.Columns[2])
	assert.Equal(t, record.Column{Name: "active", Type: record.ColBoolean}, s.Columns[3])
}

func TestParse_CreateTable_VarcharDefaultSize(t *testing.T) {
	stmt, err := Parse("CREATE TABLE t (s VARCHAR)")
	require.NoError(t, err)

	s := stmt.(*CreateTableStmt)
	require.Len(t, s.Columns, 1)
	assert.Equal(t, uint32(record.DefaultVarcharSize), s.Columns[0].Size)
}

func TestParse_CreateTable_WithoutColumns(t *testing.T) {
	stmt, err := Parse("CREATE TABLE legacy")
	require.NoError(t, err)

	s := stmt.(*CreateTableStmt)
	assert.Equal(t, "legacy", s.Table)
	assert.Empty(t, s.Columns)
}

func TestParse_CreateTable_UnknownType(t *testing.T) {
	_, err := Parse("CREATE TABLE t (x FLOAT)")
	require.Error(t, err)
}

func TestParse_Update(t *testing.T) {
	stmt, err := Parse("UPDATE users SET name = 'Jane' WHERE id = 2")
	require.NoError(t, err)

	s, ok := stmt.(*UpdateStmt)
	require.True(t, ok, "want *UpdateStmt, got %T", stmt)
	assert.Equal(t, "users", s.Table)
	assert.Equal(t, "name", s.Column)
	assert.Equal(t, record.Text("Jane"), s.Value)
	require.NotNil(t, s.Where)
}

func TestParse_Update_NoWhere(t *testing.T) {
	stmt, err := Parse("UPDATE users SET active = false")
	require.NoError(t, err)

	s := stmt.(*UpdateStmt)
	assert.Equal(t, record.Boolean(false), s.Value)
	assert.Nil(t, s.Where)
}

func TestParse_WherePrecedence(t *testing.T) {
	// a = 1 OR b = 2 AND c = 3  parses as  a = 1 OR (b = 2 AND c = 3)
	stmt, err := Parse("SELECT * FROM t WHERE a = 1 OR b = 2 AND c = 3")
	require.NoError(t, err)

	where := stmt.(*SelectStmt).Where
	or, ok := where.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpOr, or.Op)

	and, ok := or.Right.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpAnd, and.Op)

	left, ok := or.Left.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpEq, left.Op)
}

func TestParse_WhereLeftAssociative(t *testing.T) {
	// a = 1 AND b = 2 AND c = 3  parses as  ((a=1 AND b=2) AND c=3)
	stmt, err := Parse("SELECT * FROM t WHERE a = 1 AND b = 2 AND c = 3")
	require.NoError(t, err)

	and, ok := stmt.(*SelectStmt).Where.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpAnd, and.Op)

	inner, ok := and.Left.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpAnd, inner.Op)
}

func TestParse_WhereParentheses(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE (a = 1 OR b = 2) AND c = 3")
	require.NoError(t, err)

	and, ok := stmt.(*SelectStmt).Where.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpAnd, and.Op)

	or, ok := and.Left.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpOr, or.Op)
}

func TestParse_WhereComparisonOperators(t *testing.T) {
	ops := map[string]BinOp{
		"=": OpEq, "!=": OpNe, "<": OpLt, ">": OpGt, "<=": OpLe, ">=": OpGe,
	}
	for lit, op := range ops {
		stmt, err := Parse("SELECT * FROM t WHERE a " + lit + " 1")
		require.NoError(t, err, "operator %s", lit)
		be := stmt.(*SelectStmt).Where.(*BinaryExpr)
		assert.Equal(t, op, be.Op, "operator %s", lit)
	}
}

func TestParse_WhereChainedComparisonRejected(t *testing.T) {
	_, err := Parse("SELECT * FROM t WHERE a = b = c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chained")
}

func TestParse_UnsupportedStatement(t *testing.T) {
	_, err := Parse("DELETE FROM users")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported statement")
}
