// Socket transport: a Unix socket listener speaking newline-delimited
// JSON request/response framing, with per-hook timeout racing (§4.1, §6).
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/marveldaemon/mhd/internal/logging"
	"github.com/marveldaemon/mhd/internal/pathutil"
	"github.com/marveldaemon/mhd/internal/wire"
)

// Server owns the daemon's Unix socket listener and PID file for one
// project root.
type Server struct {
	d        *Daemon
	listener net.Listener
	sockPath string
	pidPath  string
}

// Listen binds the project's Unix socket, writing the PID file alongside
// it. A stale socket from a prior, uncleanly-terminated process is
// unlinked before binding (§7 "stale socket on disk").
func Listen(d *Daemon) (*Server, error) {
	sockPath, err := pathutil.SocketPath(d.root)
	if err != nil {
		return nil, fmt.Errorf("resolve socket path: %w", err)
	}
	pidPath, err := pathutil.PidPath(d.root)
	if err != nil {
		return nil, fmt.Errorf("resolve pid path: %w", err)
	}

	if err := pathutil.RemoveIfExists(sockPath); err != nil {
		logging.Warn().Err(err).Str("path", sockPath).Msg("failed to remove stale socket")
	}

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", sockPath, err)
	}

	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		logging.Warn().Err(err).Str("path", pidPath).Msg("failed to write pid file")
	}

	return &Server{d: d, listener: ln, sockPath: sockPath, pidPath: pidPath}, nil
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed (e.g. by Close or the daemon's own shutdown-grace callback).
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

// Close unbinds the listener; the daemon's own Shutdown handles unlinking
// the socket and PID files from disk.
func (s *Server) Close() error {
	return s.listener.Close()
}

// handleConn reads newline-delimited requests from one connection,
// dispatches each with its own timeout budget, and writes back exactly
// one JSON line per request (§4.1 "Timeouts", §6 "wire format").
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for reader.Scan() {
		line := reader.Bytes()
		if len(trimSpaceBytes(line)) == 0 {
			continue
		}

		var req wire.Request
		if err := json.Unmarshal(line, &req); err != nil {
			logging.Warn().Err(err).Msg("malformed request line, responding empty")
			writeResponse(conn, wire.Empty())
			continue
		}

		resp := s.dispatchWithTimeout(ctx, req)
		if err := writeResponse(conn, resp); err != nil {
			logging.Warn().Err(err).Msg("failed to write response, closing connection")
			return
		}
	}
}

// dispatchWithTimeout races the handler against the hook's timeout
// budget: 35s for security hooks, 9s for everything else (§4.1). A
// timed-out security hook fails to "ask" so nothing destructive slips
// through silently; a timed-out non-security hook returns the empty
// response, since by construction those hooks never carry a blocking
// decision (§7(e)).
func (s *Server) dispatchWithTimeout(ctx context.Context, req wire.Request) *wire.Response {
	budget := s.d.cfg.DefaultTimeout
	if req.Hook.IsSecurity() {
		budget = s.d.cfg.SecurityTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type result struct {
		resp *wire.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := Dispatch(callCtx, s.d, req.Hook, req.RequestID, req.Input)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			logging.Warn().Err(r.err).Str("hook", string(req.Hook)).Msg("handler returned error, responding empty")
			return wire.Empty()
		}
		if r.resp == nil {
			return wire.Empty()
		}
		return r.resp
	case <-callCtx.Done():
		logging.Warn().Str("hook", string(req.Hook)).Dur("budget", budget).Msg("hook handler timed out")
		if req.Hook.IsSecurity() {
			return wire.Security(req.Hook, wire.DecisionAsk, "security evaluation timed out")
		}
		return wire.Empty()
	}
}

func writeResponse(conn net.Conn, resp *wire.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte("{}")
	}
	data = append(data, '\n')
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err = conn.Write(data)
	return err
}

func trimSpaceBytes(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && (b[start] == ' ' || b[start] == '\t' || b[start] == '\r' || b[start] == '\n') {
		start++
	}
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t' || b[end-1] == '\r' || b[end-1] == '\n') {
		end--
	}
	return b[start:end]
}
