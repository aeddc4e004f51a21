// Package tftpd implements the server-side welcome socket: it accepts
// incoming RRQ/WRQ datagrams, validates and spawns a session per transfer,
// and garbage-collects finished ones. It mirrors the accept/validate/spawn
// shape the corpus uses for its HTTP-to-WebSocket upgrade handshake, adapted
// from a single-shot per-request handoff to a long-lived UDP rendezvous
// point.
package tftpd

import (
	"context"
	"net"

	"github.com/go-tftp/tftp"
	"github.com/go-tftp/tftp/metrics"
)

// peerKey identifies a transfer's (peer address, peer TID) pair for TID-clash
// detection; net.UDPAddr.String() already encodes both.
type peerKey = string

type entry struct {
	peer    peerKey
	session *tftp.Session
}

// Dispatcher owns the welcome socket and the active-session bookkeeping. A
// single goroutine runs Dispatcher.Run; every spawned session runs on its
// own goroutine with its own ephemeral socket.
type Dispatcher struct {
	welcome net.PacketConn
	fs      tftp.FileSystem
	opts    tftp.Options
	logger  *tftp.Logger
	metrics *metrics.Collector

	// active is touched only by Run's goroutine; no lock is required
	// because the dispatcher is the sole writer.
	active []entry
}

// NewDispatcher builds a Dispatcher bound to an already-listening welcome
// socket (typically ":69", or an ephemeral port in tests).
func NewDispatcher(welcome net.PacketConn, fs tftp.FileSystem, opts tftp.Options, logger *tftp.Logger, mcol *metrics.Collector) *Dispatcher {
	return &Dispatcher{welcome: welcome, fs: fs, opts: opts, logger: logger, metrics: mcol}
}

// Run services the welcome socket until ctx is cancelled or the socket
// errors. It never returns a non-nil error for individual malformed
// datagrams or rejected requests — those are handled inline — only for a
// fatal welcome-socket failure.
func (d *Dispatcher) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		d.welcome.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, addr, err := d.welcome.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		d.handleDatagram(ctx, buf[:n], addr)
	}
}

func (d *Dispatcher) handleDatagram(ctx context.Context, datagram []byte, addr net.Addr) {
	d.gc()

	key := addr.String()
	for _, e := range d.active {
		if e.peer == key {
			// TID clash: a stranger is reusing an in-flight peer endpoint.
			d.replyError(addr, tftp.ErrUndefined, "")
			return
		}
	}

	pkt, err := tftp.Decode(datagram)
	if err != nil || (pkt.Opcode != tftp.RRQ && pkt.Opcode != tftp.WRQ) {
		d.replyError(addr, tftp.ErrIllegalOp, "illegal operation")
		return
	}

	mode, err := tftp.ParseMode(string(pkt.Mode))
	if err != nil {
		d.replyError(addr, tftp.ErrIllegalOp, "illegal operation")
		return
	}

	sessionConn, err := net.ListenPacket("udp", net.JoinHostPort(d.localHost(), "0"))
	if err != nil {
		d.logger.Errorf("failed to open session socket for %s: %s", addr, err)
		return
	}

	s := tftp.NewServerSession(sessionConn, addr, pkt.Opcode, pkt.Filename, mode, d.fs, d.opts, d.logger, d.metrics)
	d.active = append(d.active, entry{peer: key, session: s})

	go func() {
		if err := s.Run(ctx); err != nil {
			d.logger.Errorf("session for %s ended: %s", addr, err)
		}
	}()
}

// gc drops entries whose session has gone inactive.
func (d *Dispatcher) gc() {
	live := d.active[:0]
	for _, e := range d.active {
		if e.session.Active() {
			live = append(live, e)
		}
	}
	d.active = live
}

func (d *Dispatcher) replyError(addr net.Addr, code tftp.ErrorCode, msg string) {
	buf, err := tftp.Encode(tftp.NewERROR(code, msg))
	if err != nil {
		return
	}
	d.welcome.WriteTo(buf, addr)
}

// localHost returns the welcome socket's bound IP, so session sockets land
// on the same interface rather than an arbitrary one.
func (d *Dispatcher) localHost() string {
	if udp, ok := d.welcome.LocalAddr().(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	return ""
}

// ActiveCount reports how many sessions the dispatcher currently believes
// are in flight, for tests and the optional metrics endpoint.
func (d *Dispatcher) ActiveCount() int {
	d.gc()
	return len(d.active)
}
