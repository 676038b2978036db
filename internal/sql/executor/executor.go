package executor

import (
	"errors"
	"fmt"

	"github.com/kafaichoi/minipg/internal/heap"
	"github.com/kafaichoi/minipg/internal/record"
	"github.com/kafaichoi/minipg/internal/sql/parser"
	"github.com/kafaichoi/minipg/internal/sqlerr"
)

// LiteralColumnName labels result columns of literal-only SELECTs, matching
// PostgreSQL's sentinel.
const LiteralColumnName = "?column?"

// Executor validates statements against table schemas and translates them
// to heap storage calls.
type Executor struct {
	store *heap.Storage
}

func New(store *heap.Storage) *Executor {
	return &Executor{store: store}
}

// ExecSQL is the top-level entry: SQL string -> Result.
func (e *Executor) ExecSQL(sql string) (*Result, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, sqlerr.SyntaxError(err.Error())
	}
	return e.Execute(stmt)
}

func (e *Executor) Execute(stmt parser.Statement) (*Result, error) {
	switch s := stmt.(type) {
	case *parser.CreateTableStmt:
		return e.execCreateTable(s)
	case *parser.InsertStmt:
		return e.execInsert(s)
	case *parser.SelectStmt:
		return e.execSelect(s)
	case *parser.UpdateStmt:
		return e.execUpdate(s)
	default:
		return nil, sqlerr.New(sqlerr.UnsupportedFeature, "unsupported statement type %T", stmt)
	}
}

func (e *Executor) execCreateTable(s *parser.CreateTableStmt) (*Result, error) {
	if e.store.TableExists(s.Table) {
		return nil, sqlerr.RelationExists(s.Table)
	}
	if err := e.store.CreateTable(s.Table, s.Columns); err != nil {
		if errors.Is(err, heap.ErrTableAlreadyExists) {
			return nil, sqlerr.RelationExists(s.Table)
		}
		return nil, sqlerr.Internalf("create table %s: %v", s.Table, err)
	}
	return &Result{Command: "CREATE TABLE"}, nil
}

func (e *Executor) execInsert(s *parser.InsertStmt) (*Result, error) {
	if !e.store.TableExists(s.Table) {
		return nil, sqlerr.RelationNotFound(s.Table)
	}
	schema, err := e.store.GetSchema(s.Table)
	if err != nil {
		return nil, sqlerr.Internalf("read schema of %s: %v", s.Table, err)
	}

	// Tables created without a column list carry no schema; skip validation.
	if schema.NumCols() > 0 {
		if err := validateInsert(s.Table, schema, s.Values); err != nil {
			return nil, err
		}
	}

	if _, err := e.store.InsertRow(s.Table, s.Values); err != nil {
		return nil, sqlerr.Internalf("insert into %s: %v", s.Table, err)
	}
	return &Result{Command: "INSERT 0 1"}, nil
}

func validateInsert(table string, schema record.Schema, values []record.Value) error {
	if len(values) != schema.NumCols() {
		return &sqlerr.Error{
			Kind: sqlerr.ColumnCountMismatch,
			Message: fmt.Sprintf("column count mismatch: %d values provided, %d expected",
				len(values), schema.NumCols()),
			Table: table,
		}
	}
	for i, col := range schema.Cols {
		v := values[i]
		if !col.Type.Accepts(v.Kind) {
			return &sqlerr.Error{
				Kind: sqlerr.TypeMismatch,
				Message: fmt.Sprintf("column %q expects type %s, got %s",
					col.Name, col.Type, v.Kind),
				Table:  table,
				Column: col.Name,
			}
		}
		if col.Type == record.ColVarchar && v.Kind == record.KindText && uint32(len(v.Str)) > col.Size {
			return &sqlerr.Error{
				Kind: sqlerr.ValueTooLong,
				Message: fmt.Sprintf("value too long for type character varying(%d)",
					col.Size),
				Detail: fmt.Sprintf("value for column %q is %d characters", col.Name, len(v.Str)),
				Table:  table,
				Column: col.Name,
			}
		}
	}
	return nil
}

func (e *Executor) execSelect(s *parser.SelectStmt) (*Result, error) {
	if !s.HasFrom {
		return e.execSelectLiteral(s)
	}
	if !e.store.TableExists(s.From) {
		return nil, sqlerr.RelationNotFound(s.From)
	}

	schema, err := e.store.GetSchema(s.From)
	if err != nil {
		return nil, sqlerr.Internalf("read schema of %s: %v", s.From, err)
	}
	rows, err := e.store.SelectAllRows(s.From)
	if err != nil {
		if errors.Is(err, heap.ErrTableNotFound) {
			return nil, sqlerr.RelationNotFound(s.From)
		}
		return nil, sqlerr.Internalf("scan %s: %v", s.From, err)
	}

	if schema.NumCols() == 0 {
		schema = legacySchema(rows)
	}

	proj, err := buildProjection(s.From, schema, s.Items)
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: proj.columns(), HasRowSet: true}
	for _, row := range rows {
		if s.Where != nil {
			ok, err := evalWhere(s.From, schema, row, s.Where)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		res.Rows = append(res.Rows, proj.apply(row))
	}
	res.Command = fmt.Sprintf("SELECT %d", len(res.Rows))
	return res, nil
}

// execSelectLiteral handles SELECT without FROM: each literal item is
// evaluated directly into a single row.
func (e *Executor) execSelectLiteral(s *parser.SelectStmt) (*Result, error) {
	res := &Result{HasRowSet: true}
	row := make([]record.Value, 0, len(s.Items))
	for _, item := range s.Items {
		switch it := item.(type) {
		case *parser.Literal:
			res.Columns = append(res.Columns, Column{
				Name: LiteralColumnName,
				Type: literalColumnType(it.Value),
			})
			row = append(row, it.Value)
		case *parser.ColumnRef:
			return nil, sqlerr.New(sqlerr.ColumnNotFound, "column %q does not exist", it.Name)
		case *parser.Wildcard:
			return nil, sqlerr.SyntaxError("SELECT * requires a FROM clause")
		default:
			return nil, sqlerr.New(sqlerr.UnsupportedFeature, "unsupported SELECT item %T", item)
		}
	}
	res.Rows = append(res.Rows, row)
	res.Command = "SELECT 1"
	return res, nil
}

func literalColumnType(v record.Value) record.ColumnType {
	switch v.Kind {
	case record.KindInt64:
		return record.ColInteger
	case record.KindBool:
		return record.ColBoolean
	default:
		return record.ColText
	}
}

// legacySchema synthesizes generic text columns for schemaless tables.
func legacySchema(rows [][]record.Value) record.Schema {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	s := record.Schema{}
	for i := 0; i < width; i++ {
		s.Cols = append(s.Cols, record.Column{
			Name: fmt.Sprintf("column%d", i+1),
			Type: record.ColText,
		})
	}
	return s
}

// projection maps a stored row to the output row shape.
type projection struct {
	cols    []Column
	sources []int          // ordinal into the stored row, or -1
	consts  []record.Value // constant value when sources[i] == -1
}

func (p *projection) columns() []Column { return p.cols }

func (p *projection) apply(row []record.Value) []record.Value {
	out := make([]record.Value, len(p.sources))
	for i, src := range p.sources {
		switch {
		case src < 0:
			out[i] = p.consts[i]
		case src < len(row):
			out[i] = row[src]
		default:
			out[i] = record.Null()
		}
	}
	return out
}

func buildProjection(table string, schema record.Schema, items []parser.SelectItem) (*projection, error) {
	p := &projection{}
	add := func(col Column, src int, c record.Value) {
		p.cols = append(p.cols, col)
		p.sources = append(p.sources, src)
		p.consts = append(p.consts, c)
	}

	for _, item := range items {
		switch it := item.(type) {
		case *parser.Wildcard:
			for i, col := range schema.Cols {
				add(Column{Name: col.Name, Type: col.Type}, i, record.Value{})
			}
		case *parser.ColumnRef:
			pos := schema.ColPos(it.Name)
			if pos < 0 {
				return nil, sqlerr.UndefinedColumn(table, it.Name)
			}
			add(Column{Name: it.Name, Type: schema.Cols[pos].Type}, pos, record.Value{})
		case *parser.Literal:
			add(Column{Name: LiteralColumnName, Type: literalColumnType(it.Value)}, -1, it.Value)
		default:
			return nil, sqlerr.New(sqlerr.UnsupportedFeature, "unsupported SELECT item %T", item)
		}
	}
	return p, nil
}

func (e *Executor) execUpdate(s *parser.UpdateStmt) (*Result, error) {
	if !e.store.TableExists(s.Table) {
		return nil, sqlerr.RelationNotFound(s.Table)
	}
	schema, err := e.store.GetSchema(s.Table)
	if err != nil {
		return nil, sqlerr.Internalf("read schema of %s: %v", s.Table, err)
	}

	if schema.NumCols() > 0 {
		pos := schema.ColPos(s.Column)
		if pos < 0 {
			return nil, sqlerr.UndefinedColumn(s.Table, s.Column)
		}
		col := schema.Cols[pos]
		if !col.Type.Accepts(s.Value.Kind) {
			return nil, &sqlerr.Error{
				Kind: sqlerr.TypeMismatch,
				Message: fmt.Sprintf("column %q expects type %s, got %s",
					col.Name, col.Type, s.Value.Kind),
				Table:  s.Table,
				Column: col.Name,
			}
		}
	}

	match := func(row []record.Value) (bool, error) { return true, nil }
	if s.Where != nil {
		match = func(row []record.Value) (bool, error) {
			return evalWhere(s.Table, schema, row, s.Where)
		}
	}

	count, err := e.store.UpdateRows(s.Table, s.Column, s.Value, match)
	if err != nil {
		switch {
		case errors.Is(err, heap.ErrColumnNotFound):
			return nil, sqlerr.UndefinedColumn(s.Table, s.Column)
		case errors.Is(err, heap.ErrTableNotFound):
			return nil, sqlerr.RelationNotFound(s.Table)
		default:
			var se *sqlerr.Error
			if errors.As(err, &se) {
				return nil, se
			}
			return nil, sqlerr.Internalf("update %s: %v", s.Table, err)
		}
	}
	return &Result{Command: fmt.Sprintf("UPDATE %d", count)}, nil
}

// ---- WHERE evaluation ----

// evalWhere resolves columns positionally through the schema. Comparisons
// of incomparable values are false, filtering the row out rather than
// raising an error.
func evalWhere(table string, schema record.Schema, row []record.Value, expr parser.Expr) (bool, error) {
	v, err := evalExpr(table, schema, row, expr)
	if err != nil {
		return false, err
	}
	return v.Kind == record.KindBool && v.Bool, nil
}

func evalExpr(table string, schema record.Schema, row []record.Value, expr parser.Expr) (record.Value, error) {
	switch ex := expr.(type) {
	case *parser.Literal:
		return ex.Value, nil

	case *parser.ColumnRef:
		pos := schema.ColPos(ex.Name)
		if pos < 0 {
			return record.Value{}, sqlerr.UndefinedColumn(table, ex.Name)
		}
		if pos >= len(row) {
			return record.Null(), nil
		}
		return row[pos], nil

	case *parser.BinaryExpr:
		left, err := evalExpr(table, schema, row, ex.Left)
		if err != nil {
			return record.Value{}, err
		}
		right, err := evalExpr(table, schema, row, ex.Right)
		if err != nil {
			return record.Value{}, err
		}
		return applyBinOp(ex.Op, left, right), nil

	default:
		return record.Value{}, sqlerr.New(sqlerr.UnsupportedFeature, "unsupported expression %T", expr)
	}
}

func applyBinOp(op parser.BinOp, left, right record.Value) record.Value {
	truthy := func(v record.Value) bool { return v.Kind == record.KindBool && v.Bool }

	switch op {
	case parser.OpAnd:
		return record.Boolean(truthy(left) && truthy(right))
	case parser.OpOr:
		return record.Boolean(truthy(left) || truthy(right))
	}

	// comparisons: no implicit coercion across kinds
	if left.IsNull() || right.IsNull() || left.Kind != right.Kind {
		return record.Boolean(false)
	}
	switch op {
	case parser.OpEq:
		return record.Boolean(left.Equal(right))
	case parser.OpNe:
		return record.Boolean(!left.Equal(right))
	}

	cmp, ok := left.Compare(right)
	if !ok {
		return record.Boolean(false)
	}
	switch op {
	case parser.OpLt:
		return record.Boolean(cmp < 0)
	case parser.OpGt:
		return record.Boolean(cmp > 0)
	case parser.OpLe:
		return record.Boolean(cmp <= 0)
	case parser.OpGe:
		return record.Boolean(cmp >= 0)
	default:
		return record.Boolean(false)
	}
}
