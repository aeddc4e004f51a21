// Package tftpc implements the client-side entry point: validating a
// get/put request against the local filesystem before any socket is opened,
// then running a single session against the server.
package tftpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/go-tftp/tftp"
	"github.com/go-tftp/tftp/metrics"
)

// Direction is the client's requested transfer direction.
type Direction int

const (
	// Get retrieves source from the server and writes it to destination.
	Get Direction = iota
	// Put reads source locally and sends it to the server as destination.
	Put
)

// ErrLocalPrecondition is returned when the local filesystem state makes the
// requested transfer impossible before any network traffic is sent (get's
// destination already exists, or put's source is missing).
var ErrLocalPrecondition = errors.New("tftp: local precondition failed")

// Request describes one client-initiated transfer.
type Request struct {
	ServerAddr  net.Addr
	Direction   Direction
	Source      string
	Destination string
	Mode        tftp.Mode
}

// Run validates the request's local precondition, opens the client's socket,
// and runs the transfer to completion.
func Run(ctx context.Context, req Request, fs tftp.FileSystem, opts tftp.Options, logger *tftp.Logger, mcol *metrics.Collector) error {
	var role tftp.Role
	var requestOpcode tftp.Opcode
	var remotePath, localPath string

	switch req.Direction {
	case Get:
		// get (RRQ): local destination must not already exist.
		if fs.Exists(req.Destination) {
			return fmt.Errorf("%w: %s already exists", ErrLocalPrecondition, req.Destination)
		}
		role = tftp.RoleWriterOfLocal
		requestOpcode = tftp.RRQ
		remotePath = req.Source
		localPath = req.Destination

	case Put:
		// put (WRQ): local source must exist.
		if !fs.Exists(req.Source) {
			return fmt.Errorf("%w: %s not found", ErrLocalPrecondition, req.Source)
		}
		role = tftp.RoleReaderOfLocal
		requestOpcode = tftp.WRQ
		remotePath = req.Destination
		localPath = req.Source

	default:
		return fmt.Errorf("tftp: unknown direction %d", req.Direction)
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return err
	}

	s := tftp.NewClientSession(conn, req.ServerAddr, role, requestOpcode, remotePath, localPath, req.Mode, fs, opts, logger, mcol)
	return s.Run(ctx)
}
