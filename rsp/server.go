package rsp

import (
	"io"
	"log"

	"dapbridge/target"
)

// Server runs the single-threaded cooperative RSP loop described in
// spec.md §5: read bytes from the debugger transport, dispatch one
// packet to completion (including every synchronous ADIv5 round-trip it
// entails), then resume reading. There is no internal parallelism and no
// locking, matching the single request-processing context the spec
// assumes.
type Server struct {
	conn   io.ReadWriter
	parser *Parser
	disp   *Dispatcher

	lastOutbound []byte // invariant I4: retained verbatim until the next '+'
	Debug        bool
}

// NewServer wires a debugger connection to a target.Interface.
func NewServer(conn io.ReadWriter, t target.Interface) *Server {
	return &Server{
		conn:   conn,
		parser: NewParser(),
		disp:   NewDispatcher(t),
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.Debug {
		log.Printf("rsp: "+format, args...)
	}
}

// Serve reads until conn.Read returns an error (closed handle or socket).
// io.EOF is treated as a clean shutdown and returns nil; any other read
// error, or a write error while replying, is returned to the caller.
func (s *Server) Serve() error {
	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		for i := 0; i < n; i++ {
			if serr := s.feed(buf[i]); serr != nil {
				return serr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// feed processes one input byte to the point where any reply it
// triggers has been fully written, preserving the ordering guarantee
// that a '+'/'-' ack always precedes the reply packet for a given
// inbound message (testable property P1).
func (s *Server) feed(b byte) error {
	ev := s.parser.Feed(b)
	switch ev.Kind {
	case EventAckPositive:
		return nil
	case EventAckNegative:
		s.logf("nack received, resending last packet")
		return s.rawWrite(s.lastOutbound)
	case EventInterrupt:
		return s.handleInterrupt()
	case EventPacketInvalid:
		s.logf("bad checksum, sending nack")
		return s.rawWrite([]byte{'-'})
	case EventPacketValid:
		if err := s.rawWrite([]byte{'+'}); err != nil {
			return err
		}
		r := s.disp.Dispatch(ev.Payload)
		if r.send {
			return s.sendPacket(r.payload)
		}
		return nil
	}
	return nil
}

func (s *Server) handleInterrupt() error {
	signal, err := s.disp.Target.Interrupt()
	if err != nil {
		return nil
	}
	return s.sendPacket("S" + hexByte(signal))
}

// sendPacket frames payload, writes it, and updates the retained last
// outbound packet only after a successful write (spec.md §5 ordering
// guarantee; invariant I4).
func (s *Server) sendPacket(payload string) error {
	framed := []byte(Encode(payload))
	if err := s.rawWrite(framed); err != nil {
		return err
	}
	s.lastOutbound = framed
	return nil
}

func (s *Server) rawWrite(b []byte) error {
	_, err := s.conn.Write(b)
	return err
}
