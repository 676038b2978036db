package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Header-page metadata keys. The header tuple of every table is a map with
// exactly these entries.
const (
	MetaKeyTableName   = "table_name"
	MetaKeyCreatedAt   = "created_at"
	MetaKeyFormat      = "page_format_version"
	MetaKeyColumns     = "columns"
	MetaKeyTotalTuples = "total_tuples"
)

// FileManager owns per-table page files under <root>/pages/<table>.pages.
// Files are always a non-zero multiple of PageSize; page 0 is the header
// page. It holds no pages in memory, only short-lived file handles.
type FileManager struct {
	dir string // <data_root>/pages

	mu      sync.Mutex
	writeMu map[string]*sync.Mutex // per-table write serialization
}

func NewFileManager(dataRoot string) (*FileManager, error) {
	dir := filepath.Join(dataRoot, "pages")
	if err := os.MkdirAll(dir, FileMode0755); err != nil {
		return nil, fmt.Errorf("create pages dir: %w", err)
	}
	return &FileManager{
		dir:     dir,
		writeMu: make(map[string]*sync.Mutex),
	}, nil
}

func (m *FileManager) Dir() string { return m.dir }

func (m *FileManager) path(table string) string {
	return filepath.Join(m.dir, table+".pages")
}

// writeLock returns the per-table write mutex. Writes to the same file are
// serialized; positioned reads proceed in parallel unconditionally.
func (m *FileManager) writeLock(table string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.writeMu[table]
	if !ok {
		l = &sync.Mutex{}
		m.writeMu[table] = l
	}
	return l
}

// Exists reports presence of the table's page file.
func (m *FileManager) Exists(table string) bool {
	_, err := os.Stat(m.path(table))
	return err == nil
}

// Create makes the page file and writes a bootstrap header page. Fails with
// ErrFileAlreadyExists when the file is present.
func (m *FileManager) Create(table string) error {
	lock := m.writeLock(table)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(m.path(table), os.O_RDWR|os.O_CREATE|os.O_EXCL, FileMode0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrFileAlreadyExists, table)
		}
		return fmt.Errorf("create page file: %w", err)
	}
	defer func() { _ = f.Close() }()

	header, err := BootstrapHeaderPage(table, nil)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(header.Serialize(), 0); err != nil {
		return fmt.Errorf("write header page: %w", err)
	}
	return nil
}

// BootstrapHeaderPage builds a fresh page 0 whose sole tuple (row_id 0) is
// the metadata record for an empty table.
func BootstrapHeaderPage(table string, columns []any) (*Page, error) {
	if columns == nil {
		columns = []any{}
	}
	meta := map[string]any{
		MetaKeyTableName:   table,
		MetaKeyCreatedAt:   time.Now().Unix(),
		MetaKeyFormat:      int64(PageFormatVersion),
		MetaKeyColumns:     columns,
		MetaKeyTotalTuples: int64(0),
	}
	blob, err := EncodeMapTuple(0, meta)
	if err != nil {
		return nil, err
	}
	p := NewPage(0)
	if err := p.AddEncodedTuple(blob); err != nil {
		return nil, err
	}
	return p, nil
}

// Read performs a positioned read of page n.
func (m *FileManager) Read(table string, n uint64) (*Page, error) {
	f, err := os.Open(m.path(table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, table)
		}
		return nil, fmt.Errorf("open page file: %w", err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, PageSize)
	read, err := f.ReadAt(buf, int64(n)*PageSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			if read == 0 {
				return nil, fmt.Errorf("%w: page %d in %s", ErrPageNotFound, n, table)
			}
			return nil, fmt.Errorf("%w: short read (%d bytes) of page %d in %s",
				ErrDeserialize, read, n, table)
		}
		return nil, fmt.Errorf("read page %d: %w", n, err)
	}
	return DeserializePage(buf)
}

// Write performs a positioned write of page n.
func (m *FileManager) Write(table string, n uint64, p *Page) error {
	if len(p.Buf) != PageSize {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidPageSize, len(p.Buf))
	}

	lock := m.writeLock(table)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(m.path(table), os.O_RDWR, FileMode0644)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, table)
		}
		return fmt.Errorf("open page file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteAt(p.Serialize(), int64(n)*PageSize); err != nil {
		return fmt.Errorf("write page %d: %w", n, err)
	}
	return nil
}

// Append writes the page at the end of the file and returns its index.
func (m *FileManager) Append(table string, p *Page) (uint64, error) {
	if len(p.Buf) != PageSize {
		return 0, fmt.Errorf("%w: got %d bytes", ErrInvalidPageSize, len(p.Buf))
	}

	lock := m.writeLock(table)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(m.path(table), os.O_RDWR, FileMode0644)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrFileNotFound, table)
		}
		return 0, fmt.Errorf("open page file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat page file: %w", err)
	}
	pageNo := uint64(info.Size()) / PageSize

	if _, err := f.WriteAt(p.Serialize(), int64(pageNo)*PageSize); err != nil {
		return 0, fmt.Errorf("append page: %w", err)
	}
	return pageNo, nil
}

// PageCount is file_size / PageSize.
func (m *FileManager) PageCount(table string) (uint64, error) {
	info, err := os.Stat(m.path(table))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrFileNotFound, table)
		}
		return 0, fmt.Errorf("stat page file: %w", err)
	}
	return uint64(info.Size()) / PageSize, nil
}

// FileSize returns the page file length in bytes.
func (m *FileManager) FileSize(table string) (int64, error) {
	info, err := os.Stat(m.path(table))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrFileNotFound, table)
		}
		return 0, fmt.Errorf("stat page file: %w", err)
	}
	return info.Size(), nil
}

// FindPageWithSpace scans data pages 1..N-1 first-fit for a page able to
// hold a tuple of bytesNeeded. Unreadable pages are skipped. First-fit is
// enough at this scale.
func (m *FileManager) FindPageWithSpace(table string, bytesNeeded int) (uint64, error) {
	count, err := m.PageCount(table)
	if err != nil {
		return 0, err
	}
	if count <= 1 {
		return 0, fmt.Errorf("%w: %s", ErrNoDataPages, table)
	}
	for n := uint64(1); n < count; n++ {
		p, err := m.Read(table, n)
		if err != nil {
			slog.Warn("skipping unreadable page during space scan",
				"table", table, "page", n, "err", err)
			continue
		}
		if p.HasSpaceFor(bytesNeeded) {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: no data page fits %d bytes in %s", ErrNoSpace, bytesNeeded, table)
}
