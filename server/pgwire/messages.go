// Package pgwire implements enough of the PostgreSQL v3 wire protocol to
// negotiate startup, run simple queries, and stream typed responses.
package pgwire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kafaichoi/minipg/internal/record"
	"github.com/kafaichoi/minipg/internal/sql/executor"
	"github.com/kafaichoi/minipg/internal/sqlerr"
)

const (
	// ProtocolVersion is the only supported frontend protocol (3.0).
	ProtocolVersion = 0x00030000

	sslRequestCode    = 80877103
	cancelRequestCode = 80877102

	// MaxStartupSize bounds memory usage on malformed/hostile input.
	MaxStartupSize = 16 << 10
	// MaxQuerySize bounds a single simple-query frame.
	MaxQuerySize = 8 << 20
)

// Type OIDs from the PostgreSQL catalog.
const (
	oidBool    = 16
	oidInt4    = 23
	oidText    = 25
	oidVarchar = 1043
)

// msgBuf accumulates one backend message body; writeTo prepends the type
// byte and the int32 length (big-endian, self-inclusive).
type msgBuf struct {
	typ byte
	b   []byte
}

func newMsg(typ byte) *msgBuf { return &msgBuf{typ: typ} }

func (m *msgBuf) byte(v byte) { m.b = append(m.b, v) }

func (m *msgBuf) int16(v int16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	m.b = append(m.b, b[:]...)
}

func (m *msgBuf) int32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	m.b = append(m.b, b[:]...)
}

func (m *msgBuf) cstring(s string) {
	m.b = append(m.b, s...)
	m.b = append(m.b, 0)
}

func (m *msgBuf) bytes(p []byte) { m.b = append(m.b, p...) }

func (m *msgBuf) writeTo(w io.Writer) error {
	out := make([]byte, 0, len(m.b)+5)
	out = append(out, m.typ)
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(m.b)+4))
	out = append(out, l[:]...)
	out = append(out, m.b...)
	_, err := w.Write(out)
	return err
}

// ---- backend messages ----

func writeAuthenticationOk(w io.Writer) error {
	m := newMsg('R')
	m.int32(0)
	return m.writeTo(w)
}

func writeParameterStatus(w io.Writer, name, value string) error {
	m := newMsg('S')
	m.cstring(name)
	m.cstring(value)
	return m.writeTo(w)
}

func writeBackendKeyData(w io.Writer, pid, secret int32) error {
	m := newMsg('K')
	m.int32(pid)
	m.int32(secret)
	return m.writeTo(w)
}

func writeReadyForQuery(w io.Writer, state byte) error {
	m := newMsg('Z')
	m.byte(state)
	return m.writeTo(w)
}

func writeEmptyQueryResponse(w io.Writer) error {
	return newMsg('I').writeTo(w)
}

func writeCommandComplete(w io.Writer, tag string) error {
	m := newMsg('C')
	m.cstring(tag)
	return m.writeTo(w)
}

func typeOID(t record.ColumnType) (oid int32, size int16) {
	switch t {
	case record.ColInteger:
		return oidInt4, 4
	case record.ColBoolean:
		return oidBool, 1
	case record.ColVarchar:
		return oidVarchar, -1
	default:
		return oidText, -1
	}
}

func writeRowDescription(w io.Writer, cols []executor.Column) error {
	m := newMsg('T')
	m.int16(int16(len(cols)))
	for _, col := range cols {
		oid, size := typeOID(col.Type)
		m.cstring(col.Name)
		m.int32(0) // table OID
		m.int16(0) // attribute number
		m.int32(oid)
		m.int16(size)
		m.int32(-1) // type modifier
		m.int16(0)  // text format
	}
	return m.writeTo(w)
}

// renderValue produces the text-format field for one value; null fields are
// sent with length -1.
func renderValue(v record.Value) (string, bool) {
	switch v.Kind {
	case record.KindNull:
		return "", true
	case record.KindBool:
		if v.Bool {
			return "t", false
		}
		return "f", false
	default:
		return v.String(), false
	}
}

func writeDataRow(w io.Writer, row []record.Value) error {
	m := newMsg('D')
	m.int16(int16(len(row)))
	for _, v := range row {
		text, null := renderValue(v)
		if null {
			m.int32(-1)
			continue
		}
		m.int32(int32(len(text)))
		m.bytes([]byte(text))
	}
	return m.writeTo(w)
}

func writeError(w io.Writer, e *sqlerr.Error) error {
	m := newMsg('E')
	severity := e.Kind.Severity()
	m.byte('S')
	m.cstring(severity)
	m.byte('V')
	m.cstring(severity)
	m.byte('C')
	m.cstring(e.Kind.SQLState())
	m.byte('M')
	m.cstring(e.Message)
	if e.Detail != "" {
		m.byte('D')
		m.cstring(e.Detail)
	}
	if e.Hint != "" {
		m.byte('H')
		m.cstring(e.Hint)
	}
	if e.Table != "" {
		m.byte('t')
		m.cstring(e.Table)
	}
	if e.Column != "" {
		m.byte('c')
		m.cstring(e.Column)
	}
	m.byte(0)
	return m.writeTo(w)
}

// ---- frontend messages ----

// startupMessage is the first (untyped) frame of a connection.
type startupMessage struct {
	protocol uint32
	params   map[string]string
}

var errMalformedStartup = fmt.Errorf("pgwire: malformed startup packet")

// readStartupMessage reads the length-prefixed startup frame.
func readStartupMessage(r io.Reader) (*startupMessage, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(hdr[:])
	if length < 8 || length > MaxStartupSize {
		return nil, fmt.Errorf("%w: length %d", errMalformedStartup, length)
	}

	body := make([]byte, length-4)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	msg := &startupMessage{
		protocol: binary.BigEndian.Uint32(body[:4]),
		params:   make(map[string]string),
	}

	// key/value pairs, each null-terminated, with a trailing zero
	rest := body[4:]
	for len(rest) > 0 && rest[0] != 0 {
		key, n, ok := nextCString(rest)
		if !ok {
			return nil, errMalformedStartup
		}
		rest = rest[n:]
		val, n, ok := nextCString(rest)
		if !ok {
			return nil, errMalformedStartup
		}
		rest = rest[n:]
		msg.params[key] = val
	}
	return msg, nil
}

func nextCString(b []byte) (string, int, bool) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), i + 1, true
		}
	}
	return "", 0, false
}

// frame is one typed frontend message.
type frame struct {
	typ     byte
	payload []byte
}

func readFrame(r io.Reader) (*frame, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(hdr[1:])
	if length < 4 || length > MaxQuerySize {
		return nil, fmt.Errorf("pgwire: bad frame length %d", length)
	}
	payload := make([]byte, length-4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return &frame{typ: hdr[0], payload: payload}, nil
}
