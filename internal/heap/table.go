package heap

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kafaichoi/minipg/internal/bufferpool"
	"github.com/kafaichoi/minipg/internal/record"
	"github.com/kafaichoi/minipg/internal/storage"
)

var (
	ErrTableNotFound      = errors.New("heap: table not found")
	ErrTableAlreadyExists = errors.New("heap: table already exists")
	ErrColumnNotFound     = errors.New("heap: column not found")
	ErrRowTooLarge        = errors.New("heap: rebuilt row does not fit its page")
)

// Storage is the heap-file table layer. Pages are borrowed from the buffer
// pool under a pin; Storage holds no page objects of its own.
type Storage struct {
	fm *storage.FileManager
	bp *bufferpool.Pool

	mu      sync.Mutex
	tableMu map[string]*sync.Mutex // serializes writers per table
}

func NewStorage(fm *storage.FileManager, bp *bufferpool.Pool) *Storage {
	return &Storage{
		fm:      fm,
		bp:      bp,
		tableMu: make(map[string]*sync.Mutex),
	}
}

func (s *Storage) writeLock(table string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.tableMu[table]
	if !ok {
		l = &sync.Mutex{}
		s.tableMu[table] = l
	}
	return l
}

// CreateTable makes the page file and writes the metadata record with the
// given schema and total_tuples=0.
func (s *Storage) CreateTable(name string, cols []record.Column) error {
	if s.fm.Exists(name) {
		return fmt.Errorf("%w: %s", ErrTableAlreadyExists, name)
	}
	if err := s.fm.Create(name); err != nil {
		if errors.Is(err, storage.ErrFileAlreadyExists) {
			return fmt.Errorf("%w: %s", ErrTableAlreadyExists, name)
		}
		return err
	}

	meta := TableMeta{
		TableName:     name,
		CreatedAt:     time.Now().Unix(),
		FormatVersion: storage.PageFormatVersion,
		Schema:        record.Schema{Cols: cols},
		TotalTuples:   0,
	}
	header, err := meta.headerPage()
	if err != nil {
		return err
	}
	return s.fm.Write(name, 0, header)
}

// TableExists reports presence of the table's page file.
func (s *Storage) TableExists(name string) bool {
	return s.fm.Exists(name)
}

// GetSchema decodes the column list from the header page.
func (s *Storage) GetSchema(name string) (record.Schema, error) {
	meta, err := s.readMeta(name)
	if err != nil {
		return record.Schema{}, err
	}
	return meta.Schema, nil
}

// readMeta fetches the metadata record through the buffer pool.
func (s *Storage) readMeta(name string) (TableMeta, error) {
	page, err := s.bp.GetPage(name, 0)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return TableMeta{}, fmt.Errorf("%w: %s", ErrTableNotFound, name)
		}
		return TableMeta{}, err
	}
	defer s.bp.UnpinPage(name, 0)
	return decodeMeta(page)
}

// writeMeta rewrites the header page atomically under a pin.
func (s *Storage) writeMeta(name string, meta TableMeta) error {
	if _, err := s.bp.GetPage(name, 0); err != nil {
		return err
	}
	defer s.bp.UnpinPage(name, 0)

	header, err := meta.headerPage()
	if err != nil {
		return err
	}
	return s.bp.MarkDirty(name, 0, header)
}

// InsertRow appends one row and returns its row id. Row ids come from the
// header's total_tuples counter, monotonic and never reused.
func (s *Storage) InsertRow(name string, values []record.Value) (uint64, error) {
	lock := s.writeLock(name)
	lock.Lock()
	defer lock.Unlock()

	meta, err := s.readMeta(name)
	if err != nil {
		return 0, err
	}
	rowID := uint64(meta.TotalTuples) + 1

	blob, err := storage.EncodeTuple(rowID, values)
	if err != nil {
		return 0, err
	}

	pageNo, page, err := s.findInsertPage(name, len(blob))
	if err != nil {
		return 0, err
	}

	updated := page.Clone()
	if err := updated.AddEncodedTuple(blob); err != nil {
		s.bp.UnpinPage(name, pageNo)
		return 0, err
	}
	if err := s.bp.MarkDirty(name, pageNo, updated); err != nil {
		s.bp.UnpinPage(name, pageNo)
		return 0, err
	}
	s.bp.UnpinPage(name, pageNo)

	meta.TotalTuples = int64(rowID)
	if err := s.writeMeta(name, meta); err != nil {
		return 0, err
	}
	return rowID, nil
}

// findInsertPage picks the first data page able to hold a tuple of size
// bytes and returns it pinned. The file manager's first-fit probe looks at
// the on-disk copies, so candidates from that point on are re-checked
// against the buffered copies, which can be fuller; when nothing fits a
// fresh page is appended.
func (s *Storage) findInsertPage(name string, size int) (uint64, *storage.Page, error) {
	start, err := s.fm.FindPageWithSpace(name, size)
	if err != nil && !errors.Is(err, storage.ErrNoDataPages) && !errors.Is(err, storage.ErrNoSpace) {
		return 0, nil, err
	}
	if err == nil {
		count, err := s.fm.PageCount(name)
		if err != nil {
			return 0, nil, err
		}
		for n := start; n < count; n++ {
			page, err := s.bp.GetPage(name, n)
			if err != nil {
				slog.Warn("skipping unreadable page during insert", "table", name, "page", n, "err", err)
				continue
			}
			if page.HasSpaceFor(size) {
				return n, page, nil
			}
			s.bp.UnpinPage(name, n)
		}
	}

	pageNo, err := s.appendDataPage(name)
	if err != nil {
		return 0, nil, err
	}
	page, err := s.bp.GetPage(name, pageNo)
	if err != nil {
		return 0, nil, err
	}
	return pageNo, page, nil
}

func (s *Storage) appendDataPage(name string) (uint64, error) {
	count, err := s.fm.PageCount(name)
	if err != nil {
		return 0, err
	}
	return s.fm.Append(name, storage.NewPage(count))
}

// SelectAllRows scans data pages in order and returns every row's values in
// insertion order. Unreadable pages are skipped so a damaged page never
// blocks the rest of the table.
func (s *Storage) SelectAllRows(name string) ([][]record.Value, error) {
	if !s.fm.Exists(name) {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	count, err := s.fm.PageCount(name)
	if err != nil {
		return nil, err
	}

	var rows [][]record.Value
	for n := uint64(1); n < count; n++ {
		page, err := s.bp.GetPage(name, n)
		if err != nil {
			slog.Warn("skipping unreadable page during scan", "table", name, "page", n, "err", err)
			continue
		}
		tuples, err := page.Tuples()
		s.bp.UnpinPage(name, n)
		if err != nil {
			slog.Warn("skipping undecodable page during scan", "table", name, "page", n, "err", err)
			continue
		}
		for _, t := range tuples {
			rows = append(rows, t.Values)
		}
	}
	return rows, nil
}

// UpdateRows sets column to newValue on every row matching the predicate
// and returns the count updated. Each touched page is rebuilt from scratch
// and written back through the pool; a rebuilt row that no longer fits is
// an error, never a silent drop.
func (s *Storage) UpdateRows(
	name, column string,
	newValue record.Value,
	match func(row []record.Value) (bool, error),
) (int, error) {
	lock := s.writeLock(name)
	lock.Lock()
	defer lock.Unlock()

	meta, err := s.readMeta(name)
	if err != nil {
		return 0, err
	}
	pos := meta.Schema.ColPos(column)
	if pos < 0 {
		return 0, fmt.Errorf("%w: %s in %s", ErrColumnNotFound, column, name)
	}

	count, err := s.fm.PageCount(name)
	if err != nil {
		return 0, err
	}

	var updated int
	for n := uint64(1); n < count; n++ {
		page, err := s.bp.GetPage(name, n)
		if err != nil {
			slog.Warn("skipping unreadable page during update", "table", name, "page", n, "err", err)
			continue
		}

		changed, err := s.updatePage(name, n, page, pos, newValue, match)
		s.bp.UnpinPage(name, n)
		if err != nil {
			return updated, err
		}
		updated += changed
	}
	return updated, nil
}

// updatePage rewrites one pinned data page. Caller holds the pin.
func (s *Storage) updatePage(
	name string,
	pageNo uint64,
	page *storage.Page,
	pos int,
	newValue record.Value,
	match func(row []record.Value) (bool, error),
) (int, error) {
	tuples, err := page.Tuples()
	if err != nil {
		slog.Warn("skipping undecodable page during update", "table", name, "page", pageNo, "err", err)
		return 0, nil
	}

	var changed int
	rebuilt := storage.NewPage(page.PageID())
	for _, t := range tuples {
		ok, err := match(t.Values)
		if err != nil {
			return 0, err
		}
		if ok {
			vals := make([]record.Value, len(t.Values))
			copy(vals, t.Values)
			if pos >= len(vals) {
				return 0, fmt.Errorf("%w: ordinal %d beyond row of %d values",
					ErrColumnNotFound, pos, len(vals))
			}
			vals[pos] = newValue
			t.Values = vals
			changed++
		}
		if err := rebuilt.AddTuple(t.RowID, t.Values); err != nil {
			return 0, fmt.Errorf("%w: page %d row %d: %v", ErrRowTooLarge, pageNo, t.RowID, err)
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := s.bp.MarkDirty(name, pageNo, rebuilt); err != nil {
		return 0, err
	}
	return changed, nil
}

// TableInfo describes one table for introspection.
type TableInfo struct {
	RowCount  int64
	PageCount uint64
	DataPages uint64
	FileSize  int64
	CreatedAt int64
	Schema    record.Schema
}

func (s *Storage) TableInfo(name string) (TableInfo, error) {
	meta, err := s.readMeta(name)
	if err != nil {
		return TableInfo{}, err
	}
	count, err := s.fm.PageCount(name)
	if err != nil {
		return TableInfo{}, err
	}
	size, err := s.fm.FileSize(name)
	if err != nil {
		return TableInfo{}, err
	}
	info := TableInfo{
		RowCount:  meta.TotalTuples,
		PageCount: count,
		FileSize:  size,
		CreatedAt: meta.CreatedAt,
		Schema:    meta.Schema,
	}
	if count > 0 {
		info.DataPages = count - 1
	}
	return info, nil
}

// Close flushes every dirty page. Called on server shutdown.
func (s *Storage) Close() error {
	flushed, err := s.bp.FlushAll()
	if err != nil {
		return err
	}
	slog.Info("heap storage closed", "pages_flushed", flushed)
	return nil
}
