package tftp

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/go-tftp/tftp/metrics"
)

// Role is which end of the local file transfer this session drives: it
// either reads the local file to produce DATA blocks, or writes received
// DATA blocks to the local file. Role is a function of the request opcode
// and whether this side is server or client — RRQ makes the server a
// reader and the client a writer; WRQ is the reverse.
type Role int

const (
	// RoleReaderOfLocal reads the local file and sends DATA.
	RoleReaderOfLocal Role = iota
	// RoleWriterOfLocal receives DATA and writes the local file.
	RoleWriterOfLocal
)

func (r Role) metricsRole() metrics.Role {
	if r == RoleReaderOfLocal {
		return metrics.RoleReader
	}
	return metrics.RoleWriter
}

// Options carries the shared client/server tunables.
type Options struct {
	Timeout             time.Duration
	MaxAttempts         int
	EnableErrorMessages bool
	LogBlockMessages    bool
}

// DefaultOptions returns the documented default tunables.
func DefaultOptions() Options {
	return Options{
		Timeout:             5 * time.Second,
		MaxAttempts:         3,
		EnableErrorMessages: false,
		LogBlockMessages:    true,
	}
}

// sorcerersApprenticeMitigation gates an optional last-acknowledged-block
// check in onACK. Off by default, so a delayed duplicate ACK still
// triggers one extra DATA send (the baseline Sorcerer's Apprentice
// behaviour); flip it only for documentation or testing, since there is
// no CLI flag for it.
const sorcerersApprenticeMitigation = false

// Session drives one file transfer end-to-end: a single Session value
// serves both client and server flavours of both roles, parameterised by
// two hooks (onStart, onFirstDatagramPeerBinding) rather than a class
// hierarchy.
type Session struct {
	id   xid.ID
	role Role

	conn     net.PacketConn
	peerAddr net.Addr
	peerSet  bool

	path string
	mode Mode
	fs   FileSystem

	opts Options

	logger  *Logger
	metrics *metrics.Collector

	currentBlock BlockNumber
	lastOutgoing []byte
	retryCount   int
	timeoutCount int

	// lastAcked and hasLastAcked record the block most recently advanced
	// past on an ACK. When sorcerersApprenticeMitigation is enabled, a
	// repeated ACK of that block is dropped instead of triggering a
	// retransmit; since a retransmit trigger is always an ACK of the block
	// just before currentBlock, this drops every repeated ACK once one ACK
	// has advanced the session.
	lastAcked    BlockNumber
	hasLastAcked bool

	fileBuffer   []byte
	hasReadOnce  bool
	pendingFinal bool

	file       io.Closer
	readStream io.Reader
	writeSink  io.Writer
	writeClose func() error

	active atomic.Bool
	// retryExhausted is set by the ACK/DATA retry-budget give-up paths
	// (distinct from the success path's active=false), so Run's
	// end-of-loop metrics accounting credits a give-up as a failure
	// rather than a completion, matching handleTimeout's own accounting.
	retryExhausted bool

	onStart                    func() error
	onFirstDatagramPeerBinding func(addr net.Addr)
}

// ownTID reports the UDP port conn is bound to — this side's own transfer
// id, per the glossary — or 0 if conn's local address isn't a *net.UDPAddr
// (not expected in practice, only a defensive fallback).
func ownTID(conn net.PacketConn) int {
	if udp, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return udp.Port
	}
	return 0
}

// sessionConfig is the shared constructor payload; NewClientSession and
// NewServerSession each fill in the hooks that make them differ.
type sessionConfig struct {
	role     Role
	conn     net.PacketConn
	peerAddr net.Addr
	peerSet  bool
	path     string
	mode     Mode
	fs       FileSystem
	opts     Options
	logger   *Logger
	metrics  *metrics.Collector
}

func newSession(cfg sessionConfig) *Session {
	s := &Session{
		id:       xid.New(),
		role:     cfg.role,
		conn:     cfg.conn,
		peerAddr: cfg.peerAddr,
		peerSet:  cfg.peerSet,
		path:     cfg.path,
		mode:     cfg.mode,
		fs:       cfg.fs,
		opts:     cfg.opts,
		logger:   cfg.logger.ForTID(ownTID(cfg.conn)),
		metrics:  cfg.metrics,
	}
	s.active.Store(true)
	return s
}

// NewServerSession builds a Session for a transfer the dispatcher just
// accepted. requestOpcode is the RRQ or WRQ that spawned it; peerAddr is
// already known (the client's ephemeral source port), so no peer-binding
// hook is needed. The server reacts immediately: an RRQ session sends the
// first DATA block, a WRQ session sends ACK(0).
func NewServerSession(conn net.PacketConn, peerAddr net.Addr, requestOpcode Opcode, path string, mode Mode, fs FileSystem, opts Options, logger *Logger, mcol *metrics.Collector) *Session {
	role := RoleWriterOfLocal
	if requestOpcode == RRQ {
		role = RoleReaderOfLocal
	}
	s := newSession(sessionConfig{
		role: role, conn: conn, peerAddr: peerAddr, peerSet: true,
		path: path, mode: mode, fs: fs, opts: opts, logger: logger, metrics: mcol,
	})
	s.onStart = func() error {
		if err := s.openLocal(); err != nil {
			return err
		}
		if role == RoleReaderOfLocal {
			return s.advanceAndSend()
		}
		return s.sendACK(s.currentBlock)
	}
	return s
}

// NewClientSession builds a Session that initiates a transfer against
// serverAddr (the well-known port, or wherever the previous reply came
// from). role and requestOpcode follow from the client's get/put choice:
// get sends RRQ and writes the local file; put sends WRQ and reads it.
// remotePath is the filename sent in the RRQ/WRQ (the CLI's <source> for a
// get, <destination> for a put); localPath is the file this side reads or
// writes — the CLI's get/put syntax allows the two to differ. The server's
// reply binds the peer TID (its ephemeral session port) on the first
// datagram received.
func NewClientSession(conn net.PacketConn, serverAddr net.Addr, role Role, requestOpcode Opcode, remotePath, localPath string, mode Mode, fs FileSystem, opts Options, logger *Logger, mcol *metrics.Collector) *Session {
	s := newSession(sessionConfig{
		role: role, conn: conn, peerAddr: serverAddr, peerSet: false,
		path: localPath, mode: mode, fs: fs, opts: opts, logger: logger, metrics: mcol,
	})
	s.onFirstDatagramPeerBinding = func(addr net.Addr) {
		s.logger.Infof("bound peer TID from %s", addr)
	}
	s.onStart = func() error {
		if err := s.openLocal(); err != nil {
			return err
		}
		req := Packet{Opcode: requestOpcode, Filename: remotePath, Mode: mode}
		return s.send(req)
	}
	return s
}

// openLocal opens the local file per the role's setup rule: a reader opens
// for reading; a writer must not find a pre-existing file.
func (s *Session) openLocal() error {
	if s.role == RoleReaderOfLocal {
		f, err := s.fs.OpenRead(s.path)
		if err != nil {
			return newLocalFault(ErrFileNotFound, err.Error())
		}
		s.file = f
		if s.mode == ModeNetASCII {
			s.readStream = NewNetASCIIReader(f)
		} else {
			s.readStream = f
		}
		return nil
	}

	if s.fs.Exists(s.path) {
		return newLocalFault(ErrFileExists, s.path+" already exists")
	}
	f, err := s.fs.CreateExclusive(s.path)
	if err != nil {
		return newLocalFault(ErrFileExists, err.Error())
	}
	s.file = f
	if s.mode == ModeNetASCII {
		w := NewNetASCIIWriter(f, NetASCIITerminator())
		s.writeSink = w
		s.writeClose = w.Close
	} else {
		s.writeSink = f
		s.writeClose = func() error { return nil }
	}
	return nil
}

// Run drives the session to completion or bounded failure with a single
// receive loop. A nil return means the session ended without a fault:
// by success, or by exhausting its timeout or retry budget. A peer ERROR
// is returned as a *TransferError with Wire set, a local fault is returned
// after the ERROR reply has been sent, and cancellation of ctx returns
// ctx.Err(). Run never panics and the caller never needs to crash on its
// account.
func (s *Session) Run(ctx context.Context) error {
	defer s.cleanup()

	s.metrics.SessionStarted(s.role.metricsRole())

	if err := s.onStart(); err != nil {
		s.abort(err)
		return err
	}

	buf := make([]byte, maxDatagramSize)
	for s.active.Load() {
		select {
		case <-ctx.Done():
			s.active.Store(false)
			return ctx.Err()
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(s.opts.Timeout))
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if done := s.handleTimeout(); done {
					return nil
				}
				continue
			}
			err := newLocalFault(ErrUndefined, err.Error())
			s.abort(err)
			return err
		}

		if !s.peerSet {
			s.peerAddr = addr
			s.peerSet = true
			if s.onFirstDatagramPeerBinding != nil {
				s.onFirstDatagramPeerBinding(addr)
			}
		} else if addr.String() != s.peerAddr.String() {
			// unexpected peer: reply to the stranger, state unchanged
			s.replyUnexpectedPeer(addr)
			continue
		}

		// a datagram from the bound peer arrived: the consecutive-timeout
		// count only tracks silence from that peer, so any progress resets
		// it, symmetric with retryCount's reset on the ACK/DATA advance
		// paths below.
		s.timeoutCount = 0

		pkt, err := Decode(buf[:n])
		if err != nil {
			err := newLocalFault(ErrUndefined, err.Error())
			s.abort(err)
			return err
		}

		switch pkt.Opcode {
		case ACK:
			if err := s.onACK(pkt.Block); err != nil {
				s.abort(err)
				return err
			}
		case DATA:
			if err := s.onDATA(pkt.Block, pkt.Payload); err != nil {
				s.abort(err)
				return err
			}
		case ERROR:
			wf := newWireFault(pkt.ErrorCode, pkt.ErrorMsg)
			s.logger.Errorf("peer reported %s", wf)
			s.active.Store(false)
			s.metrics.SessionEnded(s.role.metricsRole(), false)
			return wf
		default:
			err := newLocalFault(ErrIllegalOp, "unexpected opcode "+pkt.Opcode.String())
			s.abort(err)
			return err
		}
	}

	s.metrics.SessionEnded(s.role.metricsRole(), !s.retryExhausted)
	return nil
}

// onACK implements the reader-of-local ACK handling.
func (s *Session) onACK(incoming BlockNumber) error {
	switch {
	case incoming.Equals(s.currentBlock):
		// pendingFinal alone would already imply hasReadOnce (it is only
		// ever set inside advanceAndSend, alongside hasReadOnce), but the
		// guard is spelled out explicitly per spec.md §3's "has-read-once"
		// state field: the session may never claim completion before at
		// least one DATA block — including the zero-length-file block —
		// has actually been read and sent.
		if s.pendingFinal && s.hasReadOnce {
			s.active.Store(false)
			return nil
		}
		s.lastAcked = s.currentBlock
		s.hasLastAcked = true
		s.retryCount = 0
		return s.advanceAndSend()

	case IsInSeq(incoming, s.currentBlock):
		if sorcerersApprenticeMitigation && s.hasLastAcked && incoming.Equals(s.lastAcked) {
			// already-processed duplicate of the immediately preceding
			// ACK: drop it instead of re-triggering a DATA send.
			return nil
		}
		// peer is re-ACKing an older block: retransmit trigger
		s.retryCount++
		if s.retryCount >= s.opts.MaxAttempts {
			s.retryExhausted = true
			s.active.Store(false)
			return nil
		}
		s.metrics.Retransmit()
		return s.resend()

	default:
		return newLocalFault(ErrIllegalOp, "out-of-order ACK")
	}
}

// onDATA implements the writer-of-local DATA handling.
func (s *Session) onDATA(incoming BlockNumber, payload []byte) error {
	next := s.currentBlock.Increment()
	switch {
	case incoming.Equals(next):
		if err := s.writePayload(payload); err != nil {
			return newLocalFault(ErrDiskFull, err.Error())
		}
		s.currentBlock = next
		s.retryCount = 0
		s.logger.Blockf("wrote block %d (%d bytes)", s.currentBlock.Value(), len(payload))
		if err := s.sendACK(s.currentBlock); err != nil {
			return err
		}
		if len(payload) < maxPayloadSize {
			s.active.Store(false)
		}
		return nil

	case incoming.Equals(s.currentBlock):
		// duplicate of what was already written
		s.retryCount++
		if s.retryCount >= s.opts.MaxAttempts {
			s.retryExhausted = true
			s.active.Store(false)
			return nil
		}
		return s.sendACK(s.currentBlock)

	default:
		return newLocalFault(ErrIllegalOp, "out-of-order DATA")
	}
}

// advanceAndSend reads the next block from the local file and sends it,
// implementing the reader-of-local read/send half of the transfer. The
// zero-length-file and exact-multiple-of-512 edge cases fall out of
// readFull's contract: a chunk shorter than 512 bytes, including an empty
// one, always marks the final DATA.
func (s *Session) advanceAndSend() error {
	buf := make([]byte, maxPayloadSize)
	n, _, err := readFull(s.readStream, buf)
	if err != nil {
		return newLocalFault(ErrUndefined, err.Error())
	}
	chunk := buf[:n]
	s.hasReadOnce = true
	s.fileBuffer = chunk
	s.currentBlock = s.currentBlock.Increment()
	s.pendingFinal = len(chunk) < maxPayloadSize

	s.logger.Blockf("sending block %d (%d bytes)", s.currentBlock.Value(), len(chunk))
	return s.send(NewDATA(s.currentBlock, chunk))
}

// writePayload writes one DATA payload through the NetASCII writer (if
// active) straight to the open local file.
func (s *Session) writePayload(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := s.writeSink.Write(payload)
	return err
}

// readFull reads from r until buf is full or r reports true EOF. A Read
// that returns (0, nil) — the NetASCII reader's "nothing yet, more may
// follow" signal when it has held back a trailing CR — is retried rather
// than treated as an error or a short read.
func readFull(r io.Reader, buf []byte) (n int, eof bool, err error) {
	for n < len(buf) {
		m, rerr := r.Read(buf[n:])
		n += m
		if rerr != nil {
			if rerr == io.EOF {
				return n, true, nil
			}
			return n, false, rerr
		}
		if m == 0 {
			continue
		}
	}
	return n, false, nil
}

func (s *Session) sendACK(block BlockNumber) error {
	return s.send(NewACK(block))
}

func (s *Session) send(p Packet) error {
	buf, err := Encode(p)
	if err != nil {
		return newLocalFault(ErrUndefined, err.Error())
	}
	s.lastOutgoing = buf
	_, err = s.conn.WriteTo(buf, s.peerAddr)
	if err != nil {
		return newLocalFault(ErrUndefined, err.Error())
	}
	return nil
}

func (s *Session) resend() error {
	if len(s.lastOutgoing) == 0 {
		return nil
	}
	_, err := s.conn.WriteTo(s.lastOutgoing, s.peerAddr)
	if err != nil {
		return newLocalFault(ErrUndefined, err.Error())
	}
	return nil
}

// handleTimeout reacts to a read deadline expiring. It returns true when
// the session must stop (retry budget exhausted), in which case no ERROR is
// sent — this is a quiet termination, distinct from Session.abort.
func (s *Session) handleTimeout() bool {
	s.timeoutCount++
	s.metrics.Timeout()
	if s.timeoutCount > s.opts.MaxAttempts-1 {
		s.logger.Errorf("giving up after %d timeouts", s.timeoutCount)
		s.active.Store(false)
		s.metrics.SessionEnded(s.role.metricsRole(), false)
		return true
	}
	s.logger.Blockf("timeout, retransmitting (%d/%d)", s.timeoutCount, s.opts.MaxAttempts)
	s.resend()
	return false
}

// replyUnexpectedPeer answers a datagram from an address other than the
// bound peer with ERROR(0, ""), without touching session state.
func (s *Session) replyUnexpectedPeer(addr net.Addr) {
	buf, err := Encode(NewERROR(ErrUndefined, ""))
	if err != nil {
		return
	}
	s.conn.WriteTo(buf, addr)
}

// abort is the session's single top-level catch: build and best-effort
// send an ERROR datagram (message empty unless
// --enable-error-message-delivery), then terminate. Errors while sending
// the ERROR itself are logged and dropped — this never escalates.
func (s *Session) abort(err error) {
	s.active.Store(false)
	s.metrics.SessionEnded(s.role.metricsRole(), false)

	code := ErrUndefined
	msg := ""
	if te, ok := err.(*TransferError); ok {
		code = te.Code
		if s.opts.EnableErrorMessages {
			msg = te.Message
		}
		if te.Wire {
			// the fault already arrived as an ERROR packet; do not
			// answer an ERROR with another ERROR.
			s.logger.Errorf("session aborted: %s", err)
			return
		}
	}
	s.logger.Errorf("session aborted: %s", err)

	if !s.peerSet {
		return
	}
	buf, encErr := Encode(NewERROR(code, msg))
	if encErr != nil {
		s.logger.Errorf("failed to build ERROR reply: %s", encErr)
		return
	}
	if _, err := s.conn.WriteTo(buf, s.peerAddr); err != nil {
		s.logger.Errorf("failed to send ERROR reply: %s", err)
	}
}

// cleanup releases the session's two resources — socket and file — on
// every exit path.
func (s *Session) cleanup() {
	if s.writeClose != nil {
		s.writeClose()
	}
	if s.file != nil {
		s.file.Close()
	}
	s.conn.Close()
	s.active.Store(false)
}

// Active reports whether the session is still in flight. The dispatcher
// reads this single flag to garbage-collect finished sessions; it is the
// only cross-goroutine datum.
func (s *Session) Active() bool { return s.active.Load() }

// ID returns the session's internal correlation id, used for log
// correlation only. It is not part of the wire protocol.
func (s *Session) ID() xid.ID { return s.id }

// PeerAddr returns the bound peer address, or nil before it is known.
func (s *Session) PeerAddr() net.Addr { return s.peerAddr }
