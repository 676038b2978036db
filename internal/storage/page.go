package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/kafaichoi/minipg/internal/record"
)

// Header offsets
const (
	offPageID     = 0
	offTupleCount = 8
	offFreeStart  = 12
	offFreeEnd    = 16
	offFlags      = 20
	offChecksum   = 22
)

// +------------------+ 0
// | PageHeader (24B) |
// | LinePointers[]   | <-- free_start
// +------------------+
// |                  |
// |   Free space     |
// |                  |
// +------------------+ <-- free_end
// |  Tuple Data      |
// |  (grows down)    |
// +------------------+ PageSize (8192)
type Page struct {
	Buf []byte // fixed-size 8KB
}

// NewPage returns an empty initialized page.
func NewPage(pageID uint64) *Page {
	p := &Page{Buf: make([]byte, PageSize)}
	p.init(pageID)
	return p
}

func (p *Page) init(pageID uint64) {
	for i := range p.Buf {
		p.Buf[i] = 0
	}
	p.setPageID(pageID)
	p.setTupleCount(0)
	p.setFreeStart(HeaderSize)
	p.setFreeEnd(PageSize)
	p.setFlags(0)
	p.setChecksum(0)
}

// ---- low-level header getters/setters ----

func (p *Page) PageID() uint64 {
	return binary.LittleEndian.Uint64(p.Buf[offPageID:])
}

func (p *Page) setPageID(v uint64) {
	binary.LittleEndian.PutUint64(p.Buf[offPageID:], v)
}

func (p *Page) TupleCount() int {
	return int(binary.LittleEndian.Uint32(p.Buf[offTupleCount:]))
}

func (p *Page) setTupleCount(v uint32) {
	binary.LittleEndian.PutUint32(p.Buf[offTupleCount:], v)
}

func (p *Page) freeStart() uint32 {
	return binary.LittleEndian.Uint32(p.Buf[offFreeStart:])
}

func (p *Page) setFreeStart(v uint32) {
	binary.LittleEndian.PutUint32(p.Buf[offFreeStart:], v)
}

func (p *Page) freeEnd() uint32 {
	return binary.LittleEndian.Uint32(p.Buf[offFreeEnd:])
}

func (p *Page) setFreeEnd(v uint32) {
	binary.LittleEndian.PutUint32(p.Buf[offFreeEnd:], v)
}

func (p *Page) flags() uint16 {
	return binary.LittleEndian.Uint16(p.Buf[offFlags:])
}

func (p *Page) setFlags(v uint16) {
	binary.LittleEndian.PutUint16(p.Buf[offFlags:], v)
}

func (p *Page) Checksum() uint16 {
	return binary.LittleEndian.Uint16(p.Buf[offChecksum:])
}

func (p *Page) setChecksum(v uint16) {
	binary.LittleEndian.PutUint16(p.Buf[offChecksum:], v)
}

// ---- public helpers ----

func (p *Page) FreeSpace() int {
	return int(p.freeEnd()) - int(p.freeStart())
}

// HasSpaceFor reports whether a serialized tuple of n bytes plus its line
// pointer fits in the free region.
func (p *Page) HasSpaceFor(n int) bool {
	return n+LinePointerSize <= p.FreeSpace()
}

// Clone returns a deep copy sharing no buffer with the receiver.
func (p *Page) Clone() *Page {
	buf := make([]byte, PageSize)
	copy(buf, p.Buf)
	return &Page{Buf: buf}
}

// ---- line pointers ----

func (p *Page) linePointerOff(idx int) int {
	return HeaderSize + idx*LinePointerSize
}

func (p *Page) linePointer(idx int) (off, length uint16) {
	o := p.linePointerOff(idx)
	return binary.LittleEndian.Uint16(p.Buf[o:]), binary.LittleEndian.Uint16(p.Buf[o+2:])
}

func (p *Page) putLinePointer(idx int, off, length uint16) {
	o := p.linePointerOff(idx)
	binary.LittleEndian.PutUint16(p.Buf[o:], off)
	binary.LittleEndian.PutUint16(p.Buf[o+2:], length)
}

// ---- tuples ----

// AddEncodedTuple places an already-serialized tuple blob at the end of the
// tuple area and appends its line pointer.
func (p *Page) AddEncodedTuple(blob []byte) error {
	if len(blob) > PageSize-HeaderSize-LinePointerSize {
		return ErrTupleTooLarge
	}
	if !p.HasSpaceFor(len(blob)) {
		return ErrNoSpace
	}

	end := p.freeEnd() - uint32(len(blob))
	copy(p.Buf[end:], blob)
	p.setFreeEnd(end)

	p.putLinePointer(p.TupleCount(), uint16(end), uint16(len(blob)))
	p.setFreeStart(p.freeStart() + LinePointerSize)
	p.setTupleCount(uint32(p.TupleCount()) + 1)

	p.setChecksum(p.computeChecksum())
	return nil
}

// AddTuple serializes (rowID, values) and appends it to the page.
func (p *Page) AddTuple(rowID uint64, values []record.Value) error {
	blob, err := EncodeTuple(rowID, values)
	if err != nil {
		return err
	}
	return p.AddEncodedTuple(blob)
}

// RawTuples returns the tuple blobs in insertion order. The slices alias the
// page buffer.
func (p *Page) RawTuples() ([][]byte, error) {
	n := p.TupleCount()
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		off, length := p.linePointer(i)
		start, end := int(off), int(off)+int(length)
		if start < int(p.freeEnd()) || end > PageSize || start >= end {
			return nil, fmt.Errorf("%w: line pointer %d out of tuple area", ErrDeserialize, i)
		}
		out = append(out, p.Buf[start:end])
	}
	return out, nil
}

// Tuples decodes every tuple on the page in insertion order.
func (p *Page) Tuples() ([]Tuple, error) {
	blobs, err := p.RawTuples()
	if err != nil {
		return nil, err
	}
	out := make([]Tuple, 0, len(blobs))
	for i, blob := range blobs {
		tup, err := DecodeTuple(blob)
		if err != nil {
			return nil, fmt.Errorf("decode tuple %d: %w", i, err)
		}
		out = append(out, tup)
	}
	return out, nil
}

// computeChecksum is an unsigned 16-bit byte sum over the tuple area.
// Informational only, never enforced on read.
func (p *Page) computeChecksum() uint16 {
	var sum uint16
	for _, b := range p.Buf[p.freeEnd():] {
		sum += uint16(b)
	}
	return sum
}

// ---- (de)serialization ----

// Serialize returns the exact 8192-byte on-disk form of the page.
func (p *Page) Serialize() []byte {
	out := make([]byte, PageSize)
	copy(out, p.Buf)
	return out
}

// DeserializePage validates buf and wraps it as a Page.
func DeserializePage(buf []byte) (*Page, error) {
	if len(buf) != PageSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrWrongSize, len(buf))
	}
	b := make([]byte, PageSize)
	copy(b, buf)
	p := &Page{Buf: b}

	fs, fe := p.freeStart(), p.freeEnd()
	if fs < HeaderSize || fs > fe || fe > PageSize {
		return nil, fmt.Errorf("%w: bad free bounds [%d, %d]", ErrDeserialize, fs, fe)
	}
	if int(fs-HeaderSize) != p.TupleCount()*LinePointerSize {
		return nil, fmt.Errorf("%w: tuple_count %d does not match line pointer area",
			ErrDeserialize, p.TupleCount())
	}
	for i := 0; i < p.TupleCount(); i++ {
		off, length := p.linePointer(i)
		if int(off) < int(fe) || int(off)+int(length) > PageSize || length == 0 {
			return nil, fmt.Errorf("%w: line pointer %d out of tuple area", ErrDeserialize, i)
		}
	}
	return p, nil
}
