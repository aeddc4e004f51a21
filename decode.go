package tftp

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrMalformed is returned by Decode for any datagram that is too short,
// carries an unrecognised opcode, or (for RRQ/WRQ) is missing one of its
// two NUL-terminated strings.
var ErrMalformed = errors.New("tftp: malformed packet")

// Decode parses a received UDP datagram into a Packet. It is pure: the
// length of buf is authoritative and Decode never allocates a fixed-size
// scratch buffer and reports that size as content length — callers pass the
// exact slice returned by the socket read.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < 4 {
		return Packet{}, ErrMalformed
	}
	op := Opcode(binary.BigEndian.Uint16(buf[:2]))
	rest := buf[2:]

	switch op {
	case RRQ, WRQ:
		i := bytes.IndexByte(rest, 0)
		if i < 0 {
			return Packet{}, ErrMalformed
		}
		filename := string(rest[:i])
		rest = rest[i+1:]
		j := bytes.IndexByte(rest, 0)
		if j < 0 {
			return Packet{}, ErrMalformed
		}
		mode := Mode(asciiLower(string(rest[:j])))
		return Packet{Opcode: op, Filename: filename, Mode: mode}, nil

	case DATA:
		if len(rest) < 2 {
			return Packet{}, ErrMalformed
		}
		block := BlockNumber(binary.BigEndian.Uint16(rest[:2]))
		payload := rest[2:]
		return Packet{Opcode: op, Block: block, Payload: payload}, nil

	case ACK:
		if len(rest) < 2 {
			return Packet{}, ErrMalformed
		}
		block := BlockNumber(binary.BigEndian.Uint16(rest[:2]))
		return Packet{Opcode: op, Block: block}, nil

	case ERROR:
		if len(rest) < 2 {
			return Packet{}, ErrMalformed
		}
		code := ErrorCode(binary.BigEndian.Uint16(rest[:2]))
		msg := rest[2:]
		if i := bytes.IndexByte(msg, 0); i >= 0 {
			msg = msg[:i]
		}
		return Packet{Opcode: op, ErrorCode: code, ErrorMsg: string(msg)}, nil

	default:
		return Packet{}, ErrMalformed
	}
}
