// Package agentserver implements the agent's UDP listener (spec component
// G): it decodes RPLX envelopes, dispatches requests to the Session
// registry or a Connection, and streams back ack/stream/response
// envelopes. Grounded on original_source/cli/agent/server (the same
// ack-within-100ms/stream/response sequencing), with per-connection
// dispatch generalized from "one worker per task" to "one goroutine
// per inbound datagram".
package agentserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/replx-dev/replx/internal/connection"
	"github.com/replx-dev/replx/internal/protocol"
	"github.com/replx-dev/replx/internal/rerr"
	"github.com/replx-dev/replx/internal/session"
)

const ackDelay = 100 * time.Millisecond

// RegistryOp is a command handled at the session-registry level rather
// than delegated to a specific Connection.
type RegistryOp func(ctx context.Context, s *Server, sid string, args json.RawMessage) (any, error)

var registryOps = map[string]RegistryOp{}

func registerOp(name string, op RegistryOp) { registryOps[name] = op }

// Server owns the UDP socket and the shared session registry.
type Server struct {
	conn     *net.UDPConn
	registry *session.Registry
	log      *slog.Logger

	shuttingDown chan struct{}
}

// Listen binds a UDP socket starting at basePort, searching up to ceiling
// if basePort is already taken.
func Listen(basePort, ceiling int, reg *session.Registry, log *slog.Logger) (*Server, error) {
	for port := basePort; port <= ceiling; port++ {
		addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
		conn, err := net.ListenUDP("udp4", addr)
		if err == nil {
			return &Server{conn: conn, registry: reg, log: log, shuttingDown: make(chan struct{})}, nil
		}
	}
	return nil, fmt.Errorf("no free port between %d and %d", basePort, ceiling)
}

// Port reports the bound local port (useful when basePort was occupied).
func (s *Server) Port() int { return s.conn.LocalAddr().(*net.UDPAddr).Port }

// Serve reads datagrams until ctx is cancelled or a shutdown command is
// processed. One goroutine handles each request so a long-running command
// on one connection never blocks replies on another.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()
	buf := make([]byte, protocol.MaxDatagram)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-s.shuttingDown:
				return nil
			default:
				return err
			}
		}
		frame := append([]byte(nil), buf[:n]...)
		go s.handleDatagram(ctx, frame, addr)
	}
}

func (s *Server) handleDatagram(ctx context.Context, frame []byte, addr *net.UDPAddr) {
	env, err := protocol.Decode(frame)
	if err != nil {
		if rerr.KindOf(err) == rerr.ValidationError {
			s.send(addr, protocol.NewResponse(env.Seq, nil, "payload too large"))
			return
		}
		return // malformed datagram: drop silently
	}
	switch env.Type {
	case protocol.KindRequest:
		s.handleRequest(ctx, env, addr)
	case protocol.KindInput:
		s.handleInput(env, addr)
	default:
		// ack/response/stream from a client are ignored.
	}
}

func (s *Server) send(addr *net.UDPAddr, env protocol.Envelope) {
	frame, err := protocol.Encode(env)
	if err != nil {
		s.log.Error("encode envelope", "err", err)
		return
	}
	if _, err := s.conn.WriteToUDP(frame, addr); err != nil {
		s.log.Error("write datagram", "err", err)
	}
}

func (s *Server) handleRequest(ctx context.Context, env protocol.Envelope, addr *net.UDPAddr) {
	ackTimer := time.AfterFunc(ackDelay, func() { s.send(addr, protocol.NewAck(env.Seq)) })
	defer ackTimer.Stop()

	stream := func(streamType string, data json.RawMessage) {
		s.send(addr, protocol.NewStream(env.Seq, protocol.StreamType(streamType), data))
	}

	result, err := s.dispatch(ctx, env, stream)

	var resultJSON json.RawMessage
	var errMsg string
	if err != nil {
		errMsg = errorMessage(err)
	} else if result != nil {
		resultJSON, _ = json.Marshal(result)
	}
	s.send(addr, protocol.NewResponse(env.Seq, resultJSON, errMsg))

	if env.Command == "shutdown" && err == nil {
		s.registry.CloseAll()
		close(s.shuttingDown)
		s.conn.Close()
	}
}

func errorMessage(err error) string {
	if k := rerr.KindOf(err); k != "" {
		return string(k) + ": " + err.Error()
	}
	return err.Error()
}

// dispatch routes to a registry-level op or, failing that, resolves the
// target Connection and delegates to it.
func (s *Server) dispatch(ctx context.Context, env protocol.Envelope, stream func(string, json.RawMessage)) (any, error) {
	if op, ok := registryOps[env.Command]; ok {
		return op(ctx, s, env.SID, env.Args)
	}

	port, err := s.registry.ResolvePort(env.SID, env.Port)
	if err != nil {
		return nil, err
	}
	conn, err := s.registry.Connection(port)
	if err != nil {
		return nil, err
	}
	return conn.Execute(ctx, env.Command, env.SID, env.Args, connection.StreamFunc(stream))
}

func (s *Server) handleInput(env protocol.Envelope, addr *net.UDPAddr) {
	port, err := s.registry.ResolvePort(env.SID, env.Port)
	if err != nil {
		return
	}
	conn, err := s.registry.Connection(port)
	if err != nil {
		return
	}
	data, err := protocol.DecodeStreamBytes(env.Data)
	if err != nil {
		return
	}
	conn.ForwardInput(data)
}

// Registry exposes the server's session registry to registered ops.
func (s *Server) Registry() *session.Registry { return s.registry }
