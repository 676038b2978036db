package pgwire

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/kafaichoi/minipg/internal/sql/executor"
)

// Config carries the session-level knobs of the server.
type Config struct {
	Addr         string
	QueryTimeout time.Duration // per-frame read deadline in the query loop
	ConnTimeout  time.Duration // per-frame read deadline during startup
}

// Server accepts TCP connections and runs one session goroutine per
// connection.
type Server struct {
	cfg  Config
	exec *executor.Executor
}

func NewServer(cfg Config, exec *executor.Executor) *Server {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = 10 * time.Second
	}
	return &Server{cfg: cfg, exec: exec}
}

// Run listens on cfg.Addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is done. The listener is
// closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer func() { _ = ln.Close() }()

	slog.Info("server listening", "addr", ln.Addr())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			slog.Warn("accept failed", "err", err)
			continue
		}
		sess := newSession(conn, s.exec, s.cfg.QueryTimeout, s.cfg.ConnTimeout)
		go sess.run()
	}
}
