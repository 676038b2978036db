package heap

import (
	"errors"
	"fmt"

	"github.com/kafaichoi/minipg/internal/record"
	"github.com/kafaichoi/minipg/internal/storage"
)

var ErrBadMeta = errors.New("heap: malformed header metadata")

// TableMeta is the metadata record stored as the sole tuple (row_id 0) of
// every table's header page.
type TableMeta struct {
	TableName     string
	CreatedAt     int64 // unix seconds
	FormatVersion int64
	Schema        record.Schema
	TotalTuples   int64
}

func (m TableMeta) toMap() map[string]any {
	cols := make([]any, 0, len(m.Schema.Cols))
	for _, c := range m.Schema.Cols {
		cols = append(cols, map[string]any{
			"name": c.Name,
			"type": int64(c.Type),
			"size": int64(c.Size),
		})
	}
	return map[string]any{
		storage.MetaKeyTableName:   m.TableName,
		storage.MetaKeyCreatedAt:   m.CreatedAt,
		storage.MetaKeyFormat:      m.FormatVersion,
		storage.MetaKeyColumns:     cols,
		storage.MetaKeyTotalTuples: m.TotalTuples,
	}
}

func metaFromMap(m map[string]any) (TableMeta, error) {
	out := TableMeta{}

	name, ok := m[storage.MetaKeyTableName].(string)
	if !ok {
		return out, fmt.Errorf("%w: missing table_name", ErrBadMeta)
	}
	out.TableName = name

	if v, ok := m[storage.MetaKeyCreatedAt].(int64); ok {
		out.CreatedAt = v
	}
	if v, ok := m[storage.MetaKeyFormat].(int64); ok {
		out.FormatVersion = v
	}
	if v, ok := m[storage.MetaKeyTotalTuples].(int64); ok {
		out.TotalTuples = v
	}

	cols, ok := m[storage.MetaKeyColumns].([]any)
	if !ok {
		return out, fmt.Errorf("%w: missing columns", ErrBadMeta)
	}
	for i, raw := range cols {
		cm, ok := raw.(map[string]any)
		if !ok {
			return out, fmt.Errorf("%w: column %d is %T", ErrBadMeta, i, raw)
		}
		cname, ok := cm["name"].(string)
		if !ok {
			return out, fmt.Errorf("%w: column %d has no name", ErrBadMeta, i)
		}
		ctype, ok := cm["type"].(int64)
		if !ok {
			return out, fmt.Errorf("%w: column %q has no type", ErrBadMeta, cname)
		}
		col := record.Column{Name: cname, Type: record.ColumnType(ctype)}
		if sz, ok := cm["size"].(int64); ok {
			col.Size = uint32(sz)
		}
		out.Schema.Cols = append(out.Schema.Cols, col)
	}
	return out, nil
}

// headerPage builds a fresh page 0 carrying the metadata record.
func (m TableMeta) headerPage() (*storage.Page, error) {
	blob, err := storage.EncodeMapTuple(0, m.toMap())
	if err != nil {
		return nil, err
	}
	p := storage.NewPage(0)
	if err := p.AddEncodedTuple(blob); err != nil {
		return nil, err
	}
	return p, nil
}

// decodeMeta extracts the metadata record from a header page.
func decodeMeta(p *storage.Page) (TableMeta, error) {
	blobs, err := p.RawTuples()
	if err != nil {
		return TableMeta{}, err
	}
	if len(blobs) == 0 {
		return TableMeta{}, fmt.Errorf("%w: header page has no tuple", ErrBadMeta)
	}
	rowID, m, err := storage.DecodeMapTuple(blobs[0])
	if err != nil {
		return TableMeta{}, err
	}
	if rowID != 0 {
		return TableMeta{}, fmt.Errorf("%w: metadata tuple has row_id %d", ErrBadMeta, rowID)
	}
	return metaFromMap(m)
}
