package storage

import "errors"

const (
	// 8KB pages, same as PostgreSQL.
	PageSize = 8192

	// Fixed page header: page_id u64 | tuple_count u32 | free_start u32 |
	// free_end u32 | flags u16 | checksum u16.
	HeaderSize = 24

	// One line pointer: offset u16 | length u16.
	LinePointerSize = 4

	// PageFormatVersion is recorded in every header-page metadata tuple.
	// Tuple encoding is stable within one version.
	PageFormatVersion = 1
)

const (
	FileMode0644 = 0o644
	FileMode0755 = 0o755
)

var (
	ErrNoSpace           = errors.New("storage: not enough free space on page")
	ErrTupleTooLarge     = errors.New("storage: tuple too large for a page")
	ErrDeserialize       = errors.New("storage: page deserialization failed")
	ErrWrongSize         = errors.New("storage: buffer size != PageSize")
	ErrInvalidPageSize   = errors.New("storage: page size must be exactly PageSize")
	ErrFileAlreadyExists = errors.New("storage: page file already exists")
	ErrFileNotFound      = errors.New("storage: page file not found")
	ErrPageNotFound      = errors.New("storage: page not found")
	ErrNoDataPages       = errors.New("storage: file has no data pages")
)
