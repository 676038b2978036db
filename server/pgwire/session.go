package pgwire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kafaichoi/minipg/internal/sql/executor"
	"github.com/kafaichoi/minipg/internal/sqlerr"
)

// session runs one connection: startup handshake, then the simple-query
// loop. A session is single-threaded over its own socket; distinct
// connections run in parallel.
type session struct {
	conn net.Conn
	exec *executor.Executor

	id     uuid.UUID
	secret int32

	queryTimeout time.Duration
	connTimeout  time.Duration

	user     string
	database string
}

func newSession(conn net.Conn, exec *executor.Executor, queryTimeout, connTimeout time.Duration) *session {
	id := uuid.New()
	// BackendKeyData secret seeded from the session id
	secret := int32(binary.BigEndian.Uint32(id[0:4]))
	return &session{
		conn:         conn,
		exec:         exec,
		id:           id,
		secret:       secret,
		queryTimeout: queryTimeout,
		connTimeout:  connTimeout,
	}
}

func (s *session) run() {
	defer func() { _ = s.conn.Close() }()

	if !s.startup() {
		return
	}

	slog.Info("session established",
		"session", s.id, "remote", s.conn.RemoteAddr(), "user", s.user, "database", s.database)

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.queryTimeout))
		f, err := readFrame(s.conn)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// idle timeout is benign, keep waiting
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				slog.Debug("session read ended", "session", s.id, "err", err)
			}
			return
		}

		switch f.typ {
		case 'Q':
			if fatal := s.handleQuery(f.payload); fatal {
				return
			}
		case 'X':
			slog.Info("session terminated by client", "session", s.id)
			return
		default:
			_ = writeError(s.conn, &sqlerr.Error{
				Kind:    sqlerr.ProtocolViolation,
				Message: fmt.Sprintf("unsupported message type %q", f.typ),
			})
			return
		}
	}
}

// startup negotiates the handshake. Returns false when the session must
// close without entering the query loop.
func (s *session) startup() bool {
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.connTimeout))
		msg, err := readStartupMessage(s.conn)
		if err != nil {
			// malformed length or timeout: close without reply
			slog.Debug("startup read failed", "session", s.id, "err", err)
			return false
		}

		switch msg.protocol {
		case sslRequestCode:
			// SSL is not supported; answer 'N' and let the client retry
			// with a plain startup packet.
			if _, err := s.conn.Write([]byte{'N'}); err != nil {
				return false
			}
			continue

		case cancelRequestCode:
			// no mid-query cancellation
			return false

		case ProtocolVersion:
			s.user = msg.params["user"]
			s.database = msg.params["database"]
			return s.acceptStartup()

		default:
			major := msg.protocol >> 16
			minor := msg.protocol & 0xffff
			_ = writeError(s.conn, &sqlerr.Error{
				Kind: sqlerr.ProtocolViolation,
				Message: fmt.Sprintf(
					"unsupported frontend protocol %d.%d: server supports 3.0 to 3.0",
					major, minor),
			})
			return false
		}
	}
}

func (s *session) acceptStartup() bool {
	if err := writeAuthenticationOk(s.conn); err != nil {
		return false
	}
	params := [][2]string{
		{"server_version", "15.0"},
		{"server_encoding", "UTF8"},
		{"client_encoding", "UTF8"},
		{"DateStyle", "ISO, MDY"},
		{"TimeZone", "UTC"},
		{"integer_datetimes", "on"},
		{"standard_conforming_strings", "on"},
	}
	for _, kv := range params {
		if err := writeParameterStatus(s.conn, kv[0], kv[1]); err != nil {
			return false
		}
	}
	if err := writeBackendKeyData(s.conn, int32(os.Getpid()), s.secret); err != nil {
		return false
	}
	return writeReadyForQuery(s.conn, 'I') == nil
}

// handleQuery parses, executes, and streams the response for one simple
// query. Returns true when the session must close: after a fatal error or
// when writing the response fails.
func (s *session) handleQuery(payload []byte) bool {
	sql := strings.TrimRight(string(payload), "\x00")

	if strings.TrimSpace(strings.TrimRight(strings.TrimSpace(sql), ";")) == "" {
		_ = writeEmptyQueryResponse(s.conn)
		return writeReadyForQuery(s.conn, 'I') != nil
	}

	res, err := s.exec.ExecSQL(sql)
	if err != nil {
		se := asSQLError(err)
		slog.Debug("query failed", "session", s.id, "code", se.Kind.SQLState(), "err", se.Message)
		if writeErr := writeError(s.conn, se); writeErr != nil {
			return true
		}
		if se.Kind.Severity() == "FATAL" {
			return true
		}
		return writeReadyForQuery(s.conn, 'I') != nil
	}

	if res.HasRowSet {
		if err := writeRowDescription(s.conn, res.Columns); err != nil {
			return true
		}
		for _, row := range res.Rows {
			if err := writeDataRow(s.conn, row); err != nil {
				return true
			}
		}
	}
	if err := writeCommandComplete(s.conn, res.Command); err != nil {
		return true
	}
	return writeReadyForQuery(s.conn, 'I') != nil
}

func asSQLError(err error) *sqlerr.Error {
	var se *sqlerr.Error
	if errors.As(err, &se) {
		return se
	}
	return sqlerr.Internalf("%v", err)
}
